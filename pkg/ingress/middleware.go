package ingress

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gotempsh/temps/pkg/log"
)

// Middleware applies per-request header hygiene and per-IP rate limiting
// ahead of proxying. IP allow/block decisions live in pkg/accesscontrol,
// not here.
type Middleware struct {
	rateLimiters map[string]*rate.Limiter
	mu           sync.RWMutex
}

// NewMiddleware creates a new middleware handler.
func NewMiddleware() *Middleware {
	return &Middleware{
		rateLimiters: make(map[string]*rate.Limiter),
	}
}

// AddProxyHeaders adds standard proxy headers (X-Forwarded-For, X-Real-IP,
// X-Forwarded-Proto, X-Forwarded-Host).
func (m *Middleware) AddProxyHeaders(r *http.Request) {
	clientIP := getClientIP(r)

	if r.Header.Get("X-Real-IP") == "" {
		r.Header.Set("X-Real-IP", clientIP)
	}

	if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
		r.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		r.Header.Set("X-Forwarded-For", clientIP)
	}

	if r.Header.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if r.TLS != nil {
			proto = "https"
		}
		r.Header.Set("X-Forwarded-Proto", proto)
	}

	if r.Header.Get("X-Forwarded-Host") == "" {
		r.Header.Set("X-Forwarded-Host", r.Host)
	}
}

// CheckRateLimit reports whether a request from its client IP is allowed,
// creating a per-IP token bucket limiter on first sight.
func (m *Middleware) CheckRateLimit(r *http.Request, requestsPerSecond float64, burst int) bool {
	clientIP := getClientIP(r)

	m.mu.Lock()
	limiter, exists := m.rateLimiters[clientIP]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		m.rateLimiters[clientIP] = limiter
	}
	m.mu.Unlock()

	allowed := limiter.Allow()
	if !allowed {
		log.Warn(fmt.Sprintf("rate limit exceeded for %s", clientIP))
	}
	return allowed
}

// CleanupRateLimiters drops every tracked limiter once the map grows
// large enough that per-IP last-seen bookkeeping isn't worth it.
func (m *Middleware) CleanupRateLimiters() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rateLimiters) > 10000 {
		log.Info(fmt.Sprintf("clearing rate limiters (count: %d)", len(m.rateLimiters)))
		m.rateLimiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanupJob runs CleanupRateLimiters on an hourly ticker until
// stopCh is closed.
func (m *Middleware) StartCleanupJob(stopCh <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CleanupRateLimiters()
			case <-stopCh:
				return
			}
		}
	}()
}

// getClientIP extracts the client IP from the request: X-Forwarded-For,
// then X-Real-IP, then RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
