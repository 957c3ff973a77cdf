package ingress

import (
	"fmt"
	"strings"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// Router resolves an incoming request's Host header to the Environment
// that owns it, by custom domain or subdomain.
type Router struct {
	store storage.Store
}

// NewRouter returns a Router backed by store.
func NewRouter(store storage.Store) *Router {
	return &Router{store: store}
}

// Route resolves host (which may carry a ":port" suffix) to its owning
// Environment.
func (r *Router) Route(host string) (*types.Environment, error) {
	host = stripPort(host)

	env, err := r.store.GetEnvironmentByHost(host)
	if err != nil || env == nil {
		return nil, fmt.Errorf("ingress: no environment routes host %q", host)
	}
	return env, nil
}

// stripPort removes a trailing ":port" from a Host header value.
func stripPort(host string) string {
	if idx := strings.LastIndexByte(host, ':'); idx != -1 && !strings.Contains(host, "]") {
		return host[:idx]
	}
	return host
}
