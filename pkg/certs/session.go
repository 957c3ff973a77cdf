package certs

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certificate"
	"github.com/gotempsh/temps/pkg/types"
)

// provisionWaitTimeout bounds how long Provision waits for every expected
// authorization's challenge provider to be invoked (or for the order to
// turn out already valid).
const provisionWaitTimeout = 20 * time.Second

// challengeWaitTimeout bounds how long a blocked Present call waits for
// CompleteChallenge to release it, in case a caller abandons an order.
const challengeWaitTimeout = 5 * time.Minute

// pendingChallenge is one authorization's challenge data, captured when
// lego's solver calls Present and held open until CompleteChallenge
// releases it.
type pendingChallenge struct {
	domain  string
	token   string
	keyAuth string
	release chan struct{}
}

// session bridges one in-flight lego Certificate.Obtain call, run in its
// own goroutine, back to the two-phase Provision/CompleteChallenge API the
// certificate provider exposes. Present blocks each authorization's
// goroutine until CompleteChallenge signals every identifier has had its
// challenge satisfied by the caller, which is what lets the caller place
// every DNS TXT record for a wildcard order before any of them is
// validated.
type session struct {
	wantCount int

	mu        sync.Mutex
	collected []*pendingChallenge
	ready     chan struct{}
	readyOnce sync.Once

	releaseOnce sync.Once

	certCh chan *certificate.Resource
	errCh  chan error
}

func newSession(wantCount int) *session {
	return &session{
		wantCount: wantCount,
		ready:     make(chan struct{}, 1),
		certCh:    make(chan *certificate.Resource, 1),
		errCh:     make(chan error, 1),
	}
}

// present records one authorization's challenge and blocks until
// CompleteChallenge releases it (or challengeWaitTimeout elapses).
func (s *session) present(domain, token, keyAuth string) error {
	pc := &pendingChallenge{domain: domain, token: token, keyAuth: keyAuth, release: make(chan struct{})}

	s.mu.Lock()
	s.collected = append(s.collected, pc)
	reachedWant := len(s.collected) >= s.wantCount
	s.mu.Unlock()

	if reachedWant {
		s.readyOnce.Do(func() { s.ready <- struct{}{} })
	}

	select {
	case <-pc.release:
		return nil
	case <-time.After(challengeWaitTimeout):
		return fmt.Errorf("certs: timed out waiting for challenge to be marked ready")
	}
}

// release unblocks every collected authorization's Present call, letting
// lego's solver notify the ACME server that each challenge is ready.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, pc := range s.collected {
			close(pc.release)
		}
	})
}

// buildChallengeData assembles the ChallengeData returned to the caller
// from whatever authorizations have been collected so far.
func (s *session) buildChallengeData(domain string, challengeType types.ChallengeType, sessionID string) *types.ChallengeData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &types.ChallengeData{
		ChallengeType: challengeType,
		Domain:        domain,
		OrderURL:      sessionID,
	}
	if len(s.collected) > 0 {
		data.Token = s.collected[0].token
		data.KeyAuthorization = s.collected[0].keyAuth
		data.ValidationURL = fmt.Sprintf("%s:%s/%s", challengeType, s.collected[0].domain, s.collected[0].token)
	}

	if challengeType == types.ChallengeDNS01 {
		for _, pc := range s.collected {
			data.DNSTxtRecords = append(data.DNSTxtRecords, types.DNSTxtRecord{
				Name:          "_acme-challenge." + baseDomain(pc.domain),
				Value:         dns01TXTValue(pc.keyAuth),
				ValidationURL: fmt.Sprintf("dns-01:%s/%s", pc.domain, pc.token),
			})
		}
	}
	return data
}

// dns01TXTValue computes the DNS-01 TXT record value: the unpadded
// base64url encoding of the SHA-256 digest of the key authorization.
func dns01TXTValue(keyAuth string) string {
	sum := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// http01Adapter implements lego's challenge.Provider for HTTP-01, routing
// Present/CleanUp through a session instead of touching a filesystem or
// in-memory token map directly. The token and key authorization are
// returned to the caller in ChallengeData; this package does not serve
// them, and pkg/ingress has no route for them either.
type http01Adapter struct {
	sess *session
}

func (a *http01Adapter) Present(domain, token, keyAuth string) error {
	return a.sess.present(domain, token, keyAuth)
}

func (a *http01Adapter) CleanUp(domain, token, keyAuth string) error {
	return nil
}

// dns01Adapter implements lego's challenge.Provider for DNS-01. It never
// writes to a DNS zone itself; the caller is expected to place the TXT
// records returned by Provision before calling CompleteChallenge.
type dns01Adapter struct {
	sess *session
}

func (a *dns01Adapter) Present(domain, token, keyAuth string) error {
	return a.sess.present(domain, token, keyAuth)
}

func (a *dns01Adapter) CleanUp(domain, token, keyAuth string) error {
	return nil
}
