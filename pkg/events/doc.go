/*
Package events provides an in-memory, non-blocking pub/sub broker for
deployment lifecycle notifications.

Publishers push onto a buffered channel (capacity 100); a single
broadcast goroutine fans each Event out to every Subscriber's own
buffered channel (capacity 50), dropping rather than blocking when a
subscriber falls behind. The health monitor scheduler is the primary
consumer: it subscribes to EventMonitorCreated to start probing a new
StatusMonitor immediately instead of waiting for the next scheduler
tick.
*/
package events
