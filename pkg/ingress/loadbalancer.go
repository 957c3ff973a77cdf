package ingress

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/types"
)

// dialTimeout bounds how long SelectUpstream waits for a single upstream's
// TCP handshake before considering it unhealthy.
const dialTimeout = 500 * time.Millisecond

// UpstreamHealthChecker reports whether an upstream currently accepts
// connections. TCPDialChecker is the default; tests can substitute a
// fake to avoid touching the network.
type UpstreamHealthChecker interface {
	Healthy(ctx context.Context, upstream types.Upstream) bool
}

// TCPDialChecker considers an upstream healthy if a TCP handshake
// completes within dialTimeout.
type TCPDialChecker struct{}

// Healthy implements UpstreamHealthChecker.
func (TCPDialChecker) Healthy(ctx context.Context, upstream types.Upstream) bool {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", upstream.Host, upstream.Port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// LoadBalancer selects which of an environment's ordered upstreams a
// request is proxied to: the first one found healthy, preserving the
// configured ordering/weight as priority rather than spreading load.
type LoadBalancer struct {
	checker UpstreamHealthChecker
}

// NewLoadBalancer returns a LoadBalancer using checker, or TCPDialChecker
// if nil.
func NewLoadBalancer(checker UpstreamHealthChecker) *LoadBalancer {
	if checker == nil {
		checker = TCPDialChecker{}
	}
	return &LoadBalancer{checker: checker}
}

// SelectUpstream returns the first healthy upstream in env's configured
// order. If none answer healthy, it falls back to the first configured
// upstream rather than refusing the request outright — a flapping
// check shouldn't take an environment fully offline.
func (lb *LoadBalancer) SelectUpstream(ctx context.Context, env *types.Environment) (*types.Upstream, error) {
	if len(env.Upstreams) == 0 {
		return nil, fmt.Errorf("ingress: environment %q has no upstreams configured", env.ID)
	}

	for i := range env.Upstreams {
		up := env.Upstreams[i]
		if lb.checker.Healthy(ctx, up) {
			return &up, nil
		}
	}

	log.Warn(fmt.Sprintf("no healthy upstream found for environment %q, falling back to first configured", env.ID))
	return &env.Upstreams[0], nil
}
