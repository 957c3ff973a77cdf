package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gotempsh/temps/pkg/events"
	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// tickInterval is the scheduler's periodic driver cadence.
const tickInterval = 60 * time.Second

// maxInFlight bounds how many monitors are checked concurrently per tick.
const maxInFlight = 10

// probeRequestTimeout bounds a single HTTP attempt; probeClientTimeout is
// the http.Client's own per-request timeout, so it also applies to each
// attempt rather than to the whole retry sequence.
const (
	probeRequestTimeout = 10 * time.Second
	probeClientTimeout  = 30 * time.Second
)

// probeBackoff is the retry cadence between probe attempts: 100, 200,
// 400, 800ms, capped at 2000ms, up to 3 retries (4 attempts total).
var probeBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

const maxProbeRetries = 3

// recordBackoff is the retry cadence for persisting a StatusCheck after a
// transient storage error.
var recordBackoff = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}

const maxRecordRetries = 3

// PublicURLResolver resolves an environment's user-facing URL — never its
// internal container address — so checks validate the path a real client
// takes.
type PublicURLResolver interface {
	PublicURL(env *types.Environment) (string, error)
}

// HostPublicURLResolver builds an https URL from an environment's custom
// host if set, else its subdomain.
type HostPublicURLResolver struct {
	BaseDomain string
}

// PublicURL implements PublicURLResolver.
func (r HostPublicURLResolver) PublicURL(env *types.Environment) (string, error) {
	host := env.Host
	if host == "" {
		if env.Subdomain == "" || r.BaseDomain == "" {
			return "", fmt.Errorf("health: environment %q has no resolvable public host", env.ID)
		}
		host = env.Subdomain + "." + r.BaseDomain
	}
	return "https://" + host, nil
}

// Monitor is the C5 scheduler: it ensures one StatusMonitor exists per
// environment, ticks every 60 seconds running every active monitor
// concurrently (bounded by a semaphore), and reacts immediately to
// MonitorCreated events instead of waiting for the next tick.
type Monitor struct {
	store    storage.Store
	resolver PublicURLResolver
	client   *http.Client
	receiver events.JobReceiver

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor returns a Monitor. receiver may be nil, in which case the
// scheduler relies solely on its periodic tick.
func NewMonitor(store storage.Store, resolver PublicURLResolver, receiver events.JobReceiver) *Monitor {
	return &Monitor{
		store:    store,
		resolver: resolver,
		client:   &http.Client{Timeout: probeClientTimeout},
		receiver: receiver,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start ensures every environment has a monitor, then runs the scheduler
// loop in its own goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.initializeMonitors(); err != nil {
		return fmt.Errorf("health: initialize monitors: %w", err)
	}
	go m.run(ctx)
	return nil
}

// Stop signals the scheduler loop to exit and waits for it to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// initializeMonitors creates a plain StatusMonitor for any environment
// that doesn't have one yet.
func (m *Monitor) initializeMonitors() error {
	envs, err := m.store.ListEnvironments()
	if err != nil {
		return fmt.Errorf("list environments: %w", err)
	}
	monitors, err := m.store.ListStatusMonitors()
	if err != nil {
		return fmt.Errorf("list status monitors: %w", err)
	}

	haveMonitor := make(map[string]bool, len(monitors))
	for _, mon := range monitors {
		haveMonitor[mon.EnvironmentID] = true
	}

	for _, env := range envs {
		if haveMonitor[env.ID] {
			continue
		}
		mon := &types.StatusMonitor{
			ID:            uuid.NewString(),
			EnvironmentID: env.ID,
			MonitorType:   types.MonitorTypePlain,
			IsActive:      true,
			CreatedAt:     time.Now(),
		}
		if err := m.store.CreateStatusMonitor(mon); err != nil {
			return fmt.Errorf("create status monitor for environment %q: %w", env.ID, err)
		}
	}
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	eventCtx, cancelEvents := context.WithCancel(ctx)
	defer cancelEvents()

	if m.receiver != nil {
		go m.listenForCreatedMonitors(eventCtx)
	}

	for {
		select {
		case <-ticker.C:
			m.runAllChecks(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// listenForCreatedMonitors checks out-of-band any monitor the broker
// reports as just created, without waiting for the next tick.
func (m *Monitor) listenForCreatedMonitors(ctx context.Context) {
	for {
		ev, err := m.receiver.Next(ctx)
		if err != nil {
			return
		}
		if ev.Type != events.EventMonitorCreated {
			continue
		}
		monitorID := ev.Metadata["monitor_id"]
		if monitorID == "" {
			continue
		}
		mon, err := m.store.GetStatusMonitor(monitorID)
		if err != nil {
			log.Warn(fmt.Sprintf("health: could not load newly created monitor %q: %v", monitorID, err))
			continue
		}
		m.checkOne(ctx, mon)
	}
}

// runAllChecks fetches every active monitor and checks them concurrently,
// bounded by maxInFlight.
func (m *Monitor) runAllChecks(ctx context.Context) {
	monitors, err := m.store.ListActiveStatusMonitors()
	if err != nil {
		log.Warn(fmt.Sprintf("health: list active monitors: %v", err))
		return
	}

	sem := make(chan struct{}, maxInFlight)
	done := make(chan struct{}, len(monitors))

	for _, mon := range monitors {
		mon := mon
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			m.checkOne(ctx, mon)
		}()
	}
	for range monitors {
		<-done
	}
}

// checkOne probes one monitor's environment and persists the result.
func (m *Monitor) checkOne(ctx context.Context, mon *types.StatusMonitor) {
	env, err := m.store.GetEnvironment(mon.EnvironmentID)
	if err != nil {
		log.Warn(fmt.Sprintf("health: monitor %q: load environment: %v", mon.ID, err))
		return
	}

	baseURL, err := m.resolver.PublicURL(env)
	if err != nil {
		m.record(mon.ID, types.CheckDegraded, 0, err.Error())
		return
	}
	url := baseURL
	if mon.MonitorType == types.MonitorTypeHealth {
		url = strings.TrimSuffix(url, "/") + "/health"
	}

	status, elapsed, errMsg := m.probe(ctx, url)
	m.record(mon.ID, status, elapsed, errMsg)
}

// probe runs the retrying HTTP check contract: up to 3 retries with
// 100/200/400/800ms backoff (cap 2000ms); retry on connection error,
// timeout, or 5xx; never retry 4xx.
func (m *Monitor) probe(ctx context.Context, url string) (types.CheckStatus, int, string) {
	start := time.Now()

	var lastErr string
	var lastStatusCode int

	for attempt := 0; attempt <= maxProbeRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, probeRequestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return types.CheckDegraded, int(time.Since(start).Milliseconds()), err.Error()
		}

		resp, err := m.client.Do(req)
		cancel()

		if err != nil {
			lastErr = err.Error()
			if attempt < maxProbeRetries {
				sleep(ctx, backoffFor(attempt))
				continue
			}
			return types.CheckMajorOutage, int(time.Since(start).Milliseconds()), lastErr
		}

		lastStatusCode = resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return types.CheckOperational, int(time.Since(start).Milliseconds()), ""
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return types.CheckDegraded, int(time.Since(start).Milliseconds()), fmt.Sprintf("client error: %d", resp.StatusCode)
		case resp.StatusCode >= 500:
			if attempt < maxProbeRetries {
				sleep(ctx, backoffFor(attempt))
				continue
			}
			return types.CheckMajorOutage, int(time.Since(start).Milliseconds()), fmt.Sprintf("server error: %d", resp.StatusCode)
		default:
			return types.CheckPartialOutage, int(time.Since(start).Milliseconds()), fmt.Sprintf("unexpected status: %d", resp.StatusCode)
		}
	}

	return types.CheckMajorOutage, int(time.Since(start).Milliseconds()), fmt.Sprintf("exhausted retries, last status %d: %s", lastStatusCode, lastErr)
}

func backoffFor(attempt int) time.Duration {
	if attempt < 0 || attempt >= len(probeBackoff) {
		return 2 * time.Second
	}
	d := probeBackoff[attempt]
	if d > 2*time.Second {
		return 2 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// record persists a StatusCheck, retrying transient storage errors up to
// 3 times with 50/100/200ms backoff. Non-transient errors are logged and
// dropped — a missed sample is not worth blocking the scheduler over.
func (m *Monitor) record(monitorID string, status types.CheckStatus, responseTimeMs int, errMsg string) {
	check := &types.StatusCheck{
		ID:             uuid.NewString(),
		MonitorID:      monitorID,
		Status:         status,
		ResponseTimeMs: responseTimeMs,
		CheckedAt:      time.Now(),
		ErrorMessage:   errMsg,
	}

	var err error
	for attempt := 0; attempt <= maxRecordRetries; attempt++ {
		err = m.store.CreateStatusCheck(check)
		if err == nil {
			return
		}
		if !isTransient(err) {
			log.Warn(fmt.Sprintf("health: record status check for monitor %q: %v", monitorID, err))
			return
		}
		if attempt < maxRecordRetries {
			time.Sleep(recordBackoff[attempt])
		}
	}
	log.Warn(fmt.Sprintf("health: record status check for monitor %q: exhausted retries: %v", monitorID, err))
}

// isTransient is a conservative allowlist: only errors that look like a
// connection, deadlock, or timeout condition are retried, matching the
// contract that "other errors propagate" (here: are logged, not retried).
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "locked")
}
