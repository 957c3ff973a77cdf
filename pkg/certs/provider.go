package certs

import (
	"errors"
	"fmt"

	"github.com/gotempsh/temps/pkg/types"
)

// Provider is a certificate issuer: Let's Encrypt today, dispatched by
// provider type the way GitProviderService dispatches GitHub/GitLab.
type Provider interface {
	// Provision starts (or resumes) an order for domain. challengeType
	// must be ChallengeDNS01 for wildcard domains.
	Provision(domain string, challengeType types.ChallengeType, email string) (*ProvisioningResult, error)

	// CompleteChallenge finishes an order previously returned as a
	// Challenge result, polling until the certificate is issued or the
	// challenge fails.
	CompleteChallenge(data *types.ChallengeData, email string) (*types.Certificate, error)

	// CancelOrder is a no-op: ACME has no explicit cancellation, so
	// abandoning an order is simply not completing it. It exists so
	// callers have an explicit "give up, try again fresh" step.
	CancelOrder(orderURL string) error

	// RenewDue re-provisions every certificate whose expiration falls
	// within the provider's configured renewal window of now.
	RenewDue() error
}

// ProvisioningResult is a sum type: either the order needs a challenge
// satisfied, or it was already valid and the certificate is ready.
type ProvisioningResult struct {
	Challenge   *types.ChallengeData
	Certificate *types.Certificate
}

// ErrUnsupportedChallenge is returned when a wildcard domain is requested
// with HTTP-01, which ACME cannot validate.
var ErrUnsupportedChallenge = errors.New("certs: wildcard domains require dns-01")

// ChallengeFailedError wraps a terminal or timed-out challenge.
type ChallengeFailedError struct {
	Domain string
	Reason string
}

func (e *ChallengeFailedError) Error() string {
	return fmt.Sprintf("certs: challenge failed for %s: %s", e.Domain, e.Reason)
}

func isWildcard(domain string) bool {
	return len(domain) > 2 && domain[0] == '*' && domain[1] == '.'
}

func baseDomain(domain string) string {
	if isWildcard(domain) {
		return domain[2:]
	}
	return domain
}
