/*
Package ingress is the deployment core's reverse proxy: it resolves an
incoming request's Host header to an Environment, picks a healthy
upstream, and proxies the request, gated by IP access control and the
attack-mode PoW challenge.

# Request path

	Client → Proxy.handleRequest
	           │
	           ├─ accesscontrol.IsBlocked(client_ip)  → 403 if blocked
	           ├─ Middleware.CheckRateLimit            → 429 if exceeded
	           ├─ Router.Route(host)                   → 404 if no environment
	           ├─ CAPTCHA route? → handled directly, proxying skipped
	           ├─ project.AttackMode && no ChallengeSession → challenge page
	           ├─ LoadBalancer.SelectUpstream(env)      → 503 if none configured
	           └─ httputil.ReverseProxy → upstream

# Components

Router resolves a Host header to the *types.Environment that owns it,
by custom domain (Environment.Host) or subdomain (Environment.Subdomain).
It holds no cache; every request reads through to storage.

LoadBalancer picks the first upstream in Environment.Upstreams that
answers a TCP dial within its timeout, falling back to the first
configured upstream if none do — a flapping check should degrade a
request, not take the whole environment offline.

Middleware injects X-Forwarded-* headers and enforces a per-client-IP
token bucket rate limit, periodically dropping its limiter table once
it grows large enough that precise per-IP eviction isn't worth it.

CaptchaGate implements the attack-mode PoW gate: it issues a random
16-byte hex challenge at a fixed difficulty, verifies a client's
SHA-256(challenge||nonce) proof by counting leading zero bits, and on
success records a ChallengeSession keyed by (environment_id,
identifier, identifier_type) for 24 hours.

TLS certificates are loaded from storage.Store.ListCertificates — the
same records pkg/certs's ACME renewer produces — into a shared
tls.Config; SNI selection among them uses the standard library's
default certificate matching.
*/
package ingress
