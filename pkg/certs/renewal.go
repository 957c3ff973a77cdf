package certs

import (
	"context"
	"time"

	"github.com/gotempsh/temps/pkg/log"
)

// DefaultRenewalCheckInterval is how often RunRenewalLoop scans for
// certificates nearing expiry when the caller doesn't override it.
const DefaultRenewalCheckInterval = 24 * time.Hour

// RunRenewalLoop runs RenewDue on a fixed ticker until ctx is cancelled.
// It is meant to be started once per process (see cmd/temps's serve
// command) alongside the proxy and health scheduler.
func RunRenewalLoop(ctx context.Context, provider Provider, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRenewalCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := provider.RenewDue(); err != nil {
				log.Error("certs: renewal scan failed: " + err.Error())
			}
		}
	}
}
