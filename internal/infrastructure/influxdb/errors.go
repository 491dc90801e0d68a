package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: metrics disabled in configuration")

	// ErrConnectionFailed wraps the reason the first ping failed.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	errUnhealthy = errors.New("server reports unhealthy")
)
