package ingress

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// powDifficulty is the number of leading zero bits a valid PoW solution
// must produce.
const powDifficulty = 20

// challengeSessionTTL is how long a solved ChallengeSession bypasses the
// gate for its (environment, identifier, identifier_type) key.
const challengeSessionTTL = 24 * time.Hour

// CaptchaGate issues and verifies the attack-mode PoW challenge and
// tracks which (environment, identifier, identifier_type) keys currently hold a valid
// bypass session.
type CaptchaGate struct {
	store storage.Store
}

// NewCaptchaGate returns a CaptchaGate backed by store.
func NewCaptchaGate(store storage.Store) *CaptchaGate {
	return &CaptchaGate{store: store}
}

// HasValidSession reports whether (environmentID, identifier, identifierType)
// currently holds an unexpired ChallengeSession.
func (g *CaptchaGate) HasValidSession(environmentID, identifier string, identifierType types.IdentifierType) (bool, error) {
	session, err := g.store.GetChallengeSession(environmentID, identifier, identifierType)
	if err != nil {
		return false, fmt.Errorf("ingress: lookup challenge session: %w", err)
	}
	if session == nil {
		return false, nil
	}
	return time.Now().Before(session.ExpiresAt), nil
}

// Identifier picks the client identifier for a request: its JA4 TLS
// fingerprint if the connection negotiated one, else its IP.
func Identifier(r *http.Request) (string, types.IdentifierType) {
	if ja4 := r.Header.Get("X-JA4-Fingerprint"); ja4 != "" {
		return ja4, types.IdentifierJA4
	}
	return getClientIP(r), types.IdentifierIP
}

// challenge is what the challenge page hands the client.
type challenge struct {
	Challenge  string `json:"challenge"`
	Difficulty int    `json:"difficulty"`
}

// NewChallenge generates a random 16-byte hex challenge at the fixed
// difficulty.
func NewChallenge() (challenge, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return challenge{}, fmt.Errorf("ingress: generate challenge: %w", err)
	}
	return challenge{Challenge: hex.EncodeToString(buf), Difficulty: powDifficulty}, nil
}

// verifyRequest is the body of POST /_temps/captcha/verify.
type verifyRequest struct {
	Challenge      string             `json:"challenge"`
	Nonce          string             `json:"nonce"`
	EnvironmentID  string             `json:"environment_id"`
	Identifier     string             `json:"identifier"`
	IdentifierType types.IdentifierType `json:"identifier_type"`
}

type verifyResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// ServeChallengePage writes the challenge a blocked client must solve.
func (g *CaptchaGate) ServeChallengePage(w http.ResponseWriter, r *http.Request) {
	c, err := NewChallenge()
	if err != nil {
		http.Error(w, "could not generate challenge", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(c)
}

// HandleVerify implements POST /_temps/captcha/verify.
func (g *CaptchaGate) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVerifyError(w, "malformed request body")
		return
	}

	if req.Challenge == "" || req.Nonce == "" || req.EnvironmentID == "" || req.Identifier == "" {
		writeVerifyError(w, "missing required field")
		return
	}
	if req.IdentifierType != types.IdentifierJA4 && req.IdentifierType != types.IdentifierIP {
		writeVerifyError(w, "invalid identifier_type")
		return
	}

	if !VerifyPoW(req.Challenge, req.Nonce, powDifficulty) {
		writeVerifyError(w, "proof of work does not meet required difficulty")
		return
	}

	session := &types.ChallengeSession{
		EnvironmentID:  req.EnvironmentID,
		Identifier:     req.Identifier,
		IdentifierType: req.IdentifierType,
		UserAgent:      r.UserAgent(),
		ExpiresAt:      time.Now().Add(challengeSessionTTL),
	}
	if err := g.store.CreateChallengeSession(session); err != nil {
		log.Warn(fmt.Sprintf("ingress: persist challenge session: %v", err))
		writeVerifyError(w, "could not record session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(verifyResponse{Success: true, ExpiresAt: session.ExpiresAt})
}

func writeVerifyError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(verifyResponse{Success: false, Message: msg})
}

// VerifyPoW reports whether SHA-256(challengeHex || nonceDecimal) — raw
// string concatenation, no separator — has at least difficulty leading
// zero bits.
func VerifyPoW(challengeHex, nonceDecimal string, difficulty int) bool {
	sum := sha256.Sum256([]byte(challengeHex + nonceDecimal))
	return leadingZeroBits(sum[:]) >= difficulty
}

// SolvePoW searches for the smallest nonce satisfying VerifyPoW. It is
// provided for tests and any server-side solver stand-in; the client-side
// solver is the plain JavaScript served at /__temps/temps_captcha_wasm.js
// (the accompanying wasm module is empty).
func SolvePoW(challengeHex string, difficulty int) string {
	for nonce := 0; ; nonce++ {
		candidate := strconv.Itoa(nonce)
		if VerifyPoW(challengeHex, candidate, difficulty) {
			return candidate
		}
	}
}

// leadingZeroBits counts leading zero bits across a byte slice: full
// zero bytes count as 8 bits each, then the first nonzero byte
// contributes its own leading-zero-bit count and the count stops.
func leadingZeroBits(b []byte) int {
	count := 0
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		count += leadingZerosInByte(by)
		return count
	}
	return count
}

// leadingZerosInByte counts leading zero bits in a single byte by
// nibble: the high nibble first, each nibble's zero count taken from
// its 4-bit binary form, stopping at the first nonzero nibble.
func leadingZerosInByte(by byte) int {
	hi := by >> 4
	lo := by & 0x0f
	if hi == 0 {
		return 4 + leadingZerosInNibble(lo)
	}
	return leadingZerosInNibble(hi)
}

// leadingZerosInNibble counts leading zero bits within a 4-bit value.
func leadingZerosInNibble(n byte) int {
	switch {
	case n == 0:
		return 4
	case n == 1:
		return 3
	case n <= 3:
		return 2
	case n <= 7:
		return 1
	default:
		return 0
	}
}
