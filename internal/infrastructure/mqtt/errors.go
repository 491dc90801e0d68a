package mqtt

import "errors"

// Errors returned by the client. Check with errors.Is.
var (
	// ErrNotConnected means the broker session is down. Nothing is queued
	// for a later session.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the reason Connect gave up.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed means the broker did not accept a change or status message.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrWatchFailed means a change watch could not be started or stopped.
	ErrWatchFailed = errors.New("mqtt: change watch failed")

	// ErrInvalidChange is returned for a change without family or action.
	ErrInvalidChange = errors.New("mqtt: change needs a family and an action")

	// ErrPayloadTooLarge is returned for messages over 1MB.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
