package ingress

import (
	"testing"
	"time"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

func newTestRouter(t *testing.T) (*Router, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRouter(store), store
}

func mustCreateEnvironment(t *testing.T, store storage.Store, env *types.Environment) {
	t.Helper()
	env.CreatedAt = time.Now()
	env.UpdatedAt = time.Now()
	if err := store.CreateEnvironment(env); err != nil {
		t.Fatalf("CreateEnvironment() error = %v", err)
	}
}

func TestRouterRoutesByCustomHost(t *testing.T) {
	r, store := newTestRouter(t)
	mustCreateEnvironment(t, store, &types.Environment{
		ID:   "env-1",
		Host: "app.example.com",
	})

	env, err := r.Route("app.example.com")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if env.ID != "env-1" {
		t.Errorf("Route() ID = %q, want env-1", env.ID)
	}
}

func TestRouterRoutesBySubdomain(t *testing.T) {
	r, store := newTestRouter(t)
	mustCreateEnvironment(t, store, &types.Environment{
		ID:        "env-2",
		Subdomain: "preview-42.temps.dev",
	})

	env, err := r.Route("preview-42.temps.dev:443")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if env.ID != "env-2" {
		t.Errorf("Route() ID = %q, want env-2", env.ID)
	}
}

func TestRouterNoMatch(t *testing.T) {
	r, _ := newTestRouter(t)

	if _, err := r.Route("nowhere.example.com"); err == nil {
		t.Error("Route() with no matching environment should return an error")
	}
}

func TestStripPort(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{"localhost:3000", "localhost"},
		{"[::1]:8080", "[::1]:8080"},
	}

	for _, tt := range tests {
		if got := stripPort(tt.host); got != tt.want {
			t.Errorf("stripPort(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
