// Package events publishes committed store changes to MQTT.
//
// Notifier is an observe.Observer. Each successful save, delete,
// delete-children, rename or key/value store becomes a JSON Event on
// {prefix}/snapshot/{family}/{action}. Publishing happens on a background
// goroutine fed by a bounded queue, so a slow or absent broker never holds
// up a store operation; when the queue is full the event is dropped and
// logged.
package events
