package accesscontrol

import (
	"testing"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestCreate_ValidatesCIDR(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name    string
		cidr    string
		action  types.AccessAction
		wantErr bool
	}{
		{"bare ipv4", "192.168.1.1", types.AccessBlock, false},
		{"cidr range", "10.0.0.0/24", types.AccessBlock, false},
		{"max prefix", "10.0.0.0/32", types.AccessAllow, false},
		{"prefix too large", "10.0.0.0/33", types.AccessBlock, true},
		{"not ipv4", "256.1.1.1/24", types.AccessBlock, true},
		{"garbage", "not-an-ip", types.AccessBlock, true},
		{"bad action", "10.0.0.1", types.AccessAction("deny"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(tt.cidr, tt.action, "", "")
			if (err != nil) != tt.wantErr {
				t.Errorf("Create(%q) error = %v, wantErr %v", tt.cidr, err, tt.wantErr)
			}
		})
	}
}

func TestCreate_RejectsExactDuplicate(t *testing.T) {
	s := newTestService(t)

	if _, err := s.Create("10.0.0.0/24", types.AccessBlock, "", ""); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := s.Create("10.0.0.0/24", types.AccessBlock, "", ""); err == nil {
		t.Error("second Create() with identical CIDR should fail")
	}
	// An overlapping but distinct range is allowed.
	if _, err := s.Create("10.0.0.0/16", types.AccessAllow, "", ""); err != nil {
		t.Errorf("overlapping Create() error = %v, want nil", err)
	}
}

func TestIsBlocked(t *testing.T) {
	s := newTestService(t)

	if _, err := s.Create("203.0.113.0/24", types.AccessBlock, "abuse", "tester"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create("198.51.100.5", types.AccessBlock, "single host", "tester"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.42", true},
		{"203.0.113.255", true},
		{"198.51.100.5", true},
		{"198.51.100.6", false},
		{"8.8.8.8", false},
	}

	for _, tt := range tests {
		got, err := s.IsBlocked(tt.ip)
		if err != nil {
			t.Fatalf("IsBlocked(%q) error = %v", tt.ip, err)
		}
		if got != tt.want {
			t.Errorf("IsBlocked(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestUpdate_TouchesUpdatedAt(t *testing.T) {
	s := newTestService(t)

	rule, err := s.Create("10.1.1.0/24", types.AccessBlock, "initial", "tester")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	before := rule.UpdatedAt

	updated, err := s.Update(rule.ID, "", "", "revised reason")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Reason != "revised reason" {
		t.Errorf("Reason = %q, want %q", updated.Reason, "revised reason")
	}
	if !updated.UpdatedAt.After(before) {
		t.Error("UpdatedAt was not advanced by Update()")
	}
}

func TestDelete(t *testing.T) {
	s := newTestService(t)

	rule, err := s.Create("10.2.2.0/24", types.AccessBlock, "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Delete(rule.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	blocked, err := s.IsBlocked("10.2.2.5")
	if err != nil {
		t.Fatalf("IsBlocked() error = %v", err)
	}
	if blocked {
		t.Error("IsBlocked() returned true for a deleted rule")
	}
}
