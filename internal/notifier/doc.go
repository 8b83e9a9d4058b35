// Package notifier is the notification delivery engine of the fleet dashboard.
//
// A request passes through validation, the middleware chain and the admission
// policies (expiration, per-minute rate, throttle/grouping, deduplication)
// before it lands in a bounded FIFO queue. A single processor drains the queue:
// it emits in-app events on the bus, shows the notification on the native
// surface with linear-backoff retry, optionally forwards it to an external push
// service and records it in a bounded history persisted through a key-value store.
//
// # Policies
//
// Rejections are silent: Notify still returns an id and the outcome is visible
// only through Metrics and bus events. Only a *ValidationError is returned.
//
// # Lifecycle
//
// Start initializes the native notifier and launches the processor and the
// cleanup schedule. Destroy cancels them and discards queued work.
package notifier
