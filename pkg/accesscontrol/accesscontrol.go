package accesscontrol

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// Service answers is_blocked checks and manages IP access control rules.
type Service struct {
	store storage.Store
}

// New returns a Service backed by store.
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// IsBlocked reports whether ip falls inside any rule with action = block.
// Allow rules exist only as documentation of an exception; they never
// override a narrower block (callers that need precedence should not add
// overlapping rules).
func (s *Service) IsBlocked(ip string) (bool, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, fmt.Errorf("accesscontrol: invalid IP %q", ip)
	}

	rules, err := s.store.ListIPAccessControl()
	if err != nil {
		return false, fmt.Errorf("accesscontrol: list rules: %w", err)
	}

	for _, rule := range rules {
		if rule.Action != types.AccessBlock {
			continue
		}
		_, cidr, err := net.ParseCIDR(normalizeCIDR(rule.CIDR))
		if err != nil {
			continue
		}
		if cidr.Contains(parsed) {
			return true, nil
		}
	}
	return false, nil
}

// Create validates and persists a new rule. Exact-match duplicates (same
// CIDR string) are rejected; overlapping ranges are allowed.
func (s *Service) Create(cidr string, action types.AccessAction, reason, createdBy string) (*types.IpAccessControl, error) {
	if err := validate(cidr, action); err != nil {
		return nil, err
	}

	if existing, err := s.store.GetIPAccessControlByCIDR(cidr); err == nil && existing != nil {
		return nil, fmt.Errorf("accesscontrol: duplicate rule for %q", cidr)
	}

	now := time.Now()
	rule := &types.IpAccessControl{
		ID:        uuid.NewString(),
		CIDR:      cidr,
		Action:    action,
		Reason:    reason,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateIPAccessControl(rule); err != nil {
		return nil, fmt.Errorf("accesscontrol: create rule: %w", err)
	}
	return rule, nil
}

// Update mutates an existing rule's CIDR/action/reason, touching UpdatedAt.
// Pass an empty string/zero value for any field that should be left alone.
func (s *Service) Update(id, cidr string, action types.AccessAction, reason string) (*types.IpAccessControl, error) {
	rule, err := s.store.GetIPAccessControl(id)
	if err != nil {
		return nil, fmt.Errorf("accesscontrol: get rule: %w", err)
	}

	if cidr != "" {
		effectiveAction := action
		if effectiveAction == "" {
			effectiveAction = rule.Action
		}
		if err := validate(cidr, effectiveAction); err != nil {
			return nil, err
		}
		rule.CIDR = cidr
	}
	if action != "" {
		rule.Action = action
	}
	if reason != "" {
		rule.Reason = reason
	}
	rule.UpdatedAt = time.Now()

	if err := s.store.UpdateIPAccessControl(rule); err != nil {
		return nil, fmt.Errorf("accesscontrol: update rule: %w", err)
	}
	return rule, nil
}

// Delete removes a rule by ID.
func (s *Service) Delete(id string) error {
	return s.store.DeleteIPAccessControl(id)
}

// List returns every configured rule.
func (s *Service) List() ([]*types.IpAccessControl, error) {
	return s.store.ListIPAccessControl()
}

func validate(cidr string, action types.AccessAction) error {
	if action != types.AccessBlock && action != types.AccessAllow {
		return fmt.Errorf("accesscontrol: invalid action %q, must be %q or %q", action, types.AccessBlock, types.AccessAllow)
	}

	addrPart := cidr
	if idx := strings.IndexByte(cidr, '/'); idx >= 0 {
		prefixPart := cidr[idx+1:]
		addrPart = cidr[:idx]
		var prefix int
		if _, err := fmt.Sscanf(prefixPart, "%d", &prefix); err != nil {
			return fmt.Errorf("accesscontrol: invalid prefix length in %q", cidr)
		}
		if prefix < 0 || prefix > 32 {
			return fmt.Errorf("accesscontrol: prefix length %d out of range for %q", prefix, cidr)
		}
	}

	ip := net.ParseIP(addrPart)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("accesscontrol: %q is not a valid IPv4 address or CIDR range", cidr)
	}

	return nil
}

// normalizeCIDR turns a bare IP address into a /32 range so it can be
// parsed with net.ParseCIDR.
func normalizeCIDR(cidr string) string {
	if strings.Contains(cidr, "/") {
		return cidr
	}
	return cidr + "/32"
}
