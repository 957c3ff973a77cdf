// Package health implements the deployment core's health monitoring
// scheduler (C5): it ensures a StatusMonitor exists for every environment,
// probes each active monitor's public URL on a 60-second tick bounded by a
// small concurrency semaphore, and reacts immediately to MonitorCreated
// events instead of waiting for the next tick.
//
// Probing always resolves the environment's public-facing URL — never an
// internal container address — so a check validates the same path a real
// client takes. A probe retries up to 3 times with 100/200/400/800ms
// backoff (capped at 2s) on connection errors, timeouts, or 5xx responses;
// a 4xx response is classified degraded without being retried. Persisting
// the resulting StatusCheck retries transient storage errors up to 3 times
// with 50/100/200ms backoff.
package health
