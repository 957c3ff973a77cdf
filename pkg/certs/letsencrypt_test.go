package certs

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/gotempsh/temps/pkg/config"
	"github.com/gotempsh/temps/pkg/security"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestProvider(t *testing.T) *LetsEncryptProvider {
	t.Helper()
	sm, err := security.NewSecretsManager(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewSecretsManager() error = %v", err)
	}
	cfg := config.Default()
	cfg.AcmeDirectoryURL = "https://acme-staging-v02.example.invalid/directory"
	return NewLetsEncryptProvider(cfg, newTestStore(t), sm)
}

func TestProvision_WildcardRejectsHTTP01(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Provision("*.example.com", types.ChallengeHTTP01, "ops@example.com")
	if err != ErrUnsupportedChallenge {
		t.Fatalf("Provision() error = %v, want ErrUnsupportedChallenge", err)
	}
}

func TestIsWildcardAndBaseDomain(t *testing.T) {
	tests := []struct {
		domain       string
		wantWildcard bool
		wantBase     string
	}{
		{"example.com", false, "example.com"},
		{"*.example.com", true, "example.com"},
		{"*.sub.example.com", true, "sub.example.com"},
		{"a.b", false, "a.b"},
	}

	for _, tt := range tests {
		if got := isWildcard(tt.domain); got != tt.wantWildcard {
			t.Errorf("isWildcard(%q) = %v, want %v", tt.domain, got, tt.wantWildcard)
		}
		if got := baseDomain(tt.domain); got != tt.wantBase {
			t.Errorf("baseDomain(%q) = %q, want %q", tt.domain, got, tt.wantBase)
		}
	}
}

func TestDNS01TXTValue(t *testing.T) {
	keyAuth := "token.thumbprint"
	sum := sha256.Sum256([]byte(keyAuth))
	want := base64.RawURLEncoding.EncodeToString(sum[:])

	got := dns01TXTValue(keyAuth)
	if got != want {
		t.Errorf("dns01TXTValue() = %q, want %q", got, want)
	}
	if strings.ContainsAny(got, "=") {
		t.Errorf("dns01TXTValue() = %q, must not be padded", got)
	}
}

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second, 30 * time.Second,
	}
	if len(backoffSchedule) != len(want) {
		t.Fatalf("backoffSchedule has %d entries, want %d", len(backoffSchedule), len(want))
	}
	for i, d := range want {
		if backoffSchedule[i] != d {
			t.Errorf("backoffSchedule[%d] = %v, want %v", i, backoffSchedule[i], d)
		}
	}
}

func TestSession_PresentCollectsUntilWantCountThenReady(t *testing.T) {
	sess := newSession(2)

	done := make(chan error, 2)
	go func() { done <- sess.present("example.com", "tok1", "key1") }()

	select {
	case <-sess.ready:
		t.Fatal("session became ready after only one Present call")
	case <-time.After(50 * time.Millisecond):
	}

	go func() { done <- sess.present("example.com", "tok2", "key2") }()

	select {
	case <-sess.ready:
	case <-time.After(time.Second):
		t.Fatal("session never became ready after second Present call")
	}

	sess.release()

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("present() error = %v", err)
		}
	}
}

func TestSession_BuildChallengeDataDNS01(t *testing.T) {
	sess := newSession(2)
	go sess.present("*.example.com", "tok1", "key1")
	go sess.present("*.example.com", "tok2", "key2")
	<-sess.ready
	defer sess.release()

	data := sess.buildChallengeData("*.example.com", types.ChallengeDNS01, "session-id")
	if len(data.DNSTxtRecords) != 2 {
		t.Fatalf("got %d TXT records, want 2", len(data.DNSTxtRecords))
	}
	for _, rec := range data.DNSTxtRecords {
		if rec.Name != "_acme-challenge.example.com" {
			t.Errorf("TXT record name = %q, want _acme-challenge.example.com", rec.Name)
		}
	}
	if data.OrderURL != "session-id" {
		t.Errorf("OrderURL = %q, want session-id", data.OrderURL)
	}
}
