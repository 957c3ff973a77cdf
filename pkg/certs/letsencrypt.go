package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
	"github.com/google/uuid"

	"github.com/gotempsh/temps/pkg/config"
	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/security"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// backoffSchedule is the polling cadence CompleteChallenge uses while
// waiting for an order to finish validating: 1, 2, 4, 8, 16, 30 seconds,
// six attempts, roughly 61s worst case.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// acmeUser implements lego's registration.User.
type acmeUser struct {
	email        string
	key          crypto.PrivateKey
	registration *registration.Resource
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }


// LetsEncryptProvider is the Provider implementation backed by Let's
// Encrypt (or any ACME-compliant CA reachable at cfg.AcmeDirectoryURL,
// e.g. a local Pebble instance for tests).
type LetsEncryptProvider struct {
	cfg     config.Config
	store   storage.Store
	secrets *security.SecretsManager

	mu       sync.Mutex
	sessions map[string]*session
}

// NewLetsEncryptProvider constructs a provider bound to store for account
// and certificate persistence, encrypting account keys with secrets.
func NewLetsEncryptProvider(cfg config.Config, store storage.Store, secrets *security.SecretsManager) *LetsEncryptProvider {
	return &LetsEncryptProvider{
		cfg:      cfg,
		store:    store,
		secrets:  secrets,
		sessions: make(map[string]*session),
	}
}

func (p *LetsEncryptProvider) environment() types.AcmeEnvironment {
	if p.cfg.LetsEncryptMode == config.AcmeModeStaging {
		return types.AcmeStaging
	}
	return types.AcmeProduction
}

func (p *LetsEncryptProvider) putSession(id string, s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = s
}

func (p *LetsEncryptProvider) takeSession(id string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[id]
	delete(p.sessions, id)
	return s
}

// clientFor looks up (or creates) the ACME account for email, decrypting
// its persisted key or generating and persisting a fresh one, and returns
// a lego client registered against that account.
func (p *LetsEncryptProvider) clientFor(email string) (*lego.Client, *acmeUser, error) {
	if email == "" {
		email = p.cfg.AcmeEmail
	}

	var key *ecdsa.PrivateKey
	account, err := p.store.GetAcmeAccount(email, p.environment())
	isNewAccount := err != nil || account == nil
	if isNewAccount {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("certs: generate account key: %w", err)
		}
	} else {
		key, err = p.secrets.DecryptACMEKey(account.EncryptedPrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("certs: decrypt account key: %w", err)
		}
	}

	user := &acmeUser{email: email, key: key}
	cfg := lego.NewConfig(user)
	cfg.CADirURL = p.cfg.AcmeDirectoryURL
	cfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("certs: create acme client: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, nil, fmt.Errorf("certs: register acme account: %w", err)
	}
	user.registration = reg

	if isNewAccount {
		encKey, err := p.secrets.EncryptACMEKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("certs: encrypt account key: %w", err)
		}
		newAccount := &types.AcmeAccount{
			ID:                  uuid.NewString(),
			Email:               email,
			Environment:         p.environment(),
			EncryptedPrivateKey: encKey,
			RegistrationURI:     reg.URI,
			CreatedAt:           time.Now(),
		}
		if err := p.store.CreateAcmeAccount(newAccount); err != nil {
			return nil, nil, fmt.Errorf("certs: persist acme account: %w", err)
		}
	}

	return client, user, nil
}

// Provision implements Provider.
func (p *LetsEncryptProvider) Provision(domain string, challengeType types.ChallengeType, email string) (*ProvisioningResult, error) {
	wildcard := isWildcard(domain)
	if wildcard && challengeType != types.ChallengeDNS01 {
		return nil, ErrUnsupportedChallenge
	}

	identifiers := []string{domain}
	if wildcard {
		identifiers = append(identifiers, baseDomain(domain))
	}

	client, _, err := p.clientFor(email)
	if err != nil {
		return nil, err
	}

	sess := newSession(len(identifiers))

	switch challengeType {
	case types.ChallengeHTTP01:
		if err := client.Challenge.SetHTTP01Provider(&http01Adapter{sess: sess}); err != nil {
			return nil, fmt.Errorf("certs: set http-01 provider: %w", err)
		}
	case types.ChallengeDNS01:
		if err := client.Challenge.SetDNS01Provider(&dns01Adapter{sess: sess}); err != nil {
			return nil, fmt.Errorf("certs: set dns-01 provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("certs: unknown challenge type %q", challengeType)
	}

	sessionID := uuid.NewString()
	p.putSession(sessionID, sess)

	go func() {
		res, err := client.Certificate.Obtain(certificate.ObtainRequest{Domains: identifiers, Bundle: true})
		if err != nil {
			select {
			case sess.errCh <- err:
			default:
			}
			return
		}
		select {
		case sess.certCh <- res:
		default:
		}
	}()

	select {
	case <-sess.ready:
		return &ProvisioningResult{Challenge: sess.buildChallengeData(domain, challengeType, sessionID)}, nil

	case res := <-sess.certCh:
		p.takeSession(sessionID)
		cert, err := parseCertificateResource(domain, wildcard, res)
		if err != nil {
			return nil, err
		}
		if err := p.persist(cert); err != nil {
			return nil, err
		}
		return &ProvisioningResult{Certificate: cert}, nil

	case err := <-sess.errCh:
		p.takeSession(sessionID)
		return nil, fmt.Errorf("certs: obtain certificate: %w", err)

	case <-time.After(provisionWaitTimeout):
		p.takeSession(sessionID)
		return nil, fmt.Errorf("certs: timed out waiting for order challenges")
	}
}

// CompleteChallenge implements Provider.
func (p *LetsEncryptProvider) CompleteChallenge(data *types.ChallengeData, email string) (*types.Certificate, error) {
	sess := p.takeSession(data.OrderURL)
	if sess == nil {
		return nil, &ChallengeFailedError{Domain: data.Domain, Reason: "no pending order for this challenge"}
	}

	sess.release()

	wildcard := isWildcard(data.Domain)
	for _, d := range backoffSchedule {
		select {
		case res := <-sess.certCh:
			cert, err := parseCertificateResource(data.Domain, wildcard, res)
			if err != nil {
				return nil, err
			}
			if err := p.persist(cert); err != nil {
				return nil, err
			}
			return cert, nil

		case err := <-sess.errCh:
			return nil, &ChallengeFailedError{Domain: data.Domain, Reason: err.Error()}

		case <-time.After(d):
			continue
		}
	}

	return nil, &ChallengeFailedError{Domain: data.Domain, Reason: "timed out waiting for validation"}
}

// CancelOrder implements Provider. ACME has no cancellation endpoint;
// dropping the session so a future Provision call starts a fresh order is
// the whole of it.
func (p *LetsEncryptProvider) CancelOrder(orderURL string) error {
	if sess := p.takeSession(orderURL); sess != nil {
		sess.release()
	}
	return nil
}

// RenewDue implements Provider.
func (p *LetsEncryptProvider) RenewDue() error {
	certs, err := p.store.ListCertificates()
	if err != nil {
		return fmt.Errorf("certs: list certificates: %w", err)
	}

	now := time.Now()
	for _, cert := range certs {
		if cert.Status != types.CertificateActive {
			continue
		}
		if cert.ExpirationTime.Sub(now) > p.cfg.RenewalWindow {
			continue
		}

		challengeType := types.ChallengeHTTP01
		if cert.IsWildcard {
			challengeType = types.ChallengeDNS01
		}

		result, err := p.Provision(cert.Domain, challengeType, p.cfg.AcmeEmail)
		if err != nil {
			log.Error(fmt.Sprintf("certs: renewal provision failed for %s: %v", cert.Domain, err))
			continue
		}
		if result.Challenge != nil {
			// DNS-01 renewals still need the caller to place records and
			// call CompleteChallenge; HTTP-01 renewals are expected to
			// resolve via the live proxy already serving prior tokens,
			// but a cold TXT record still requires the out-of-band step.
			log.Info(fmt.Sprintf("certs: renewal for %s requires a new challenge to be completed", cert.Domain))
			continue
		}
		log.Info(fmt.Sprintf("certs: renewed certificate for %s", cert.Domain))
	}

	return nil
}

// persist writes cert to the store, creating it if no row for its domain
// exists yet and updating it otherwise.
func (p *LetsEncryptProvider) persist(cert *types.Certificate) error {
	existing, err := p.store.GetCertificateByDomain(cert.Domain)
	if err == nil && existing != nil {
		cert.ID = existing.ID
		return p.store.UpdateCertificate(cert)
	}
	cert.ID = uuid.NewString()
	return p.store.CreateCertificate(cert)
}

// parseCertificateResource converts a lego certificate.Resource into our
// domain Certificate, parsing the leaf for its expiration.
func parseCertificateResource(domain string, wildcard bool, res *certificate.Resource) (*types.Certificate, error) {
	block, _ := pem.Decode(res.Certificate)
	if block == nil {
		return nil, fmt.Errorf("certs: decode certificate PEM: empty block")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("certs: parse certificate: %w", err)
	}

	sans := make([]string, 0, len(leaf.DNSNames))
	sans = append(sans, leaf.DNSNames...)

	return &types.Certificate{
		Domain:         domain,
		SANs:           sans,
		PEMCert:        res.Certificate,
		PEMKey:         res.PrivateKey,
		ExpirationTime: leaf.NotAfter,
		LastRenewed:    time.Now(),
		IsWildcard:     wildcard,
		Status:         types.CertificateActive,
	}, nil
}
