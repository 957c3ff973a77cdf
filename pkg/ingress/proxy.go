package ingress

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gotempsh/temps/pkg/accesscontrol"
	"github.com/gotempsh/temps/pkg/config"
	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/storage"
)

// requestsPerSecond and rateLimitBurst bound the per-IP token bucket
// applied ahead of every proxied request.
const (
	requestsPerSecond = 20.0
	rateLimitBurst    = 40
)

// Proxy is the C4 reverse proxy: it resolves host -> environment ->
// upstream, enforces IP access control and the attack-mode PoW gate,
// and proxies the request transparently.
type Proxy struct {
	store      storage.Store
	router     *Router
	lb         *LoadBalancer
	middleware *Middleware
	access     *accesscontrol.Service
	captcha    *CaptchaGate

	httpServer  *http.Server
	httpsServer *http.Server
	tlsConfig   *tls.Config

	stopCleanup chan struct{}
}

// NewProxy wires together a Proxy from its collaborators.
func NewProxy(store storage.Store) *Proxy {
	return &Proxy{
		store:      store,
		router:     NewRouter(store),
		lb:         NewLoadBalancer(nil),
		middleware: NewMiddleware(),
		access:     accesscontrol.New(store),
		captcha:    NewCaptchaGate(store),
	}
}

// Start starts the HTTP and (if certificates are available) HTTPS
// listeners and blocks until ctx is cancelled.
func (p *Proxy) Start(ctx context.Context, cfg config.Config) error {
	if err := p.loadTLSCertificates(); err != nil {
		log.Warn(fmt.Sprintf("failed to load TLS certificates: %v", err))
	}

	p.stopCleanup = make(chan struct{})
	p.middleware.StartCleanupJob(p.stopCleanup)

	p.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      http.HandlerFunc(p.handleRequest),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	httpListener, err := net.Listen("tcp", p.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("ingress: listen on %s: %w", p.httpServer.Addr, err)
	}
	log.Info(fmt.Sprintf("ingress proxy listening on %s (HTTP)", p.httpServer.Addr))
	go func() {
		if err := p.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			log.Error(fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	if p.tlsConfig != nil && len(p.tlsConfig.Certificates) > 0 {
		p.httpsServer = &http.Server{
			Addr:         cfg.HTTPSAddr,
			Handler:      http.HandlerFunc(p.handleRequest),
			TLSConfig:    p.tlsConfig,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		httpsListener, err := net.Listen("tcp", p.httpsServer.Addr)
		if err != nil {
			log.Warn(fmt.Sprintf("failed to listen on %s: %v", p.httpsServer.Addr, err))
		} else {
			log.Info(fmt.Sprintf("ingress proxy listening on %s (HTTPS)", p.httpsServer.Addr))
			go func() {
				tlsListener := tls.NewListener(httpsListener, p.tlsConfig)
				if err := p.httpsServer.Serve(tlsListener); err != nil && err != http.ErrServerClosed {
					log.Error(fmt.Sprintf("HTTPS server error: %v", err))
				}
			}()
		}
	} else {
		log.Info("no TLS certificates loaded, HTTPS disabled")
	}

	<-ctx.Done()
	log.Info("shutting down ingress proxy")
	close(p.stopCleanup)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(fmt.Sprintf("failed to shut down HTTP server: %v", err))
	}
	if p.httpsServer != nil {
		if err := p.httpsServer.Shutdown(shutdownCtx); err != nil {
			log.Error(fmt.Sprintf("failed to shut down HTTPS server: %v", err))
		}
	}
	return nil
}

const (
	captchaVerifyPath = "/_temps/captcha/verify"
	captchaJSPath     = "/__temps/temps_captcha_wasm.js"
	captchaWasmPath   = "/__temps/temps_captcha_wasm_bg.wasm"
)

// handleRequest implements spec 4.4's request path in order: check access
// control, check rate limit, resolve host, enforce the attack-mode PoW
// gate, then proxy to the first healthy upstream.
func (p *Proxy) handleRequest(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	log.Debug(fmt.Sprintf("ingress request: %s %s%s", r.Method, host, r.URL.Path))

	clientIP := getClientIP(r)
	blocked, err := p.access.IsBlocked(clientIP)
	if err != nil {
		log.Warn(fmt.Sprintf("access control check failed for %s: %v", clientIP, err))
	} else if blocked {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if !p.middleware.CheckRateLimit(r, requestsPerSecond, rateLimitBurst) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	env, err := p.router.Route(host)
	if err != nil {
		log.Warn(fmt.Sprintf("no environment for host %q: %v", host, err))
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if isCaptchaRoute(r.URL.Path) {
		p.serveCaptchaRoute(w, r)
		return
	}

	project, err := p.store.GetProject(env.ProjectID)
	if err != nil {
		log.Warn(fmt.Sprintf("load project %q for environment %q: %v", env.ProjectID, env.ID, err))
	}
	if project != nil && project.AttackMode {
		identifier, identifierType := Identifier(r)
		ok, err := p.captcha.HasValidSession(env.ID, identifier, identifierType)
		if err != nil {
			log.Warn(fmt.Sprintf("challenge session lookup failed: %v", err))
		}
		if !ok {
			p.captcha.ServeChallengePage(w, r)
			return
		}
	}

	upstream, err := p.lb.SelectUpstream(r.Context(), env)
	if err != nil {
		log.Warn(fmt.Sprintf("no upstream for environment %q: %v", env.ID, err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	p.middleware.AddProxyHeaders(r)
	if err := p.proxyRequest(w, r, fmt.Sprintf("%s:%d", upstream.Host, upstream.Port)); err != nil {
		log.Error(fmt.Sprintf("proxy error: %v", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
}

func isCaptchaRoute(path string) bool {
	return path == captchaVerifyPath || path == captchaJSPath || path == captchaWasmPath
}

func (p *Proxy) serveCaptchaRoute(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case captchaVerifyPath:
		p.captcha.HandleVerify(w, r)
	case captchaJSPath:
		w.Header().Set("Content-Type", "application/javascript")
		http.NotFound(w, r)
	case captchaWasmPath:
		w.Header().Set("Content-Type", "application/wasm")
		http.NotFound(w, r)
	}
}

// proxyRequest forwards the request to backendAddr, preserving the
// original Host header for virtual hosting.
func (p *Proxy) proxyRequest(w http.ResponseWriter, r *http.Request, backendAddr string) error {
	targetURL, err := url.Parse("http://" + backendAddr)
	if err != nil {
		return fmt.Errorf("invalid upstream address %q: %w", backendAddr, err)
	}

	originalHost := r.Host
	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = originalHost
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error(fmt.Sprintf("proxy error for %s: %v", backendAddr, err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)
	return nil
}

// loadTLSCertificates loads every stored certificate into a shared
// tls.Config; SNI selection among them uses the standard library
// default.
func (p *Proxy) loadTLSCertificates() error {
	certs, err := p.store.ListCertificates()
	if err != nil {
		return fmt.Errorf("list certificates: %w", err)
	}
	if len(certs) == 0 {
		log.Debug("no TLS certificates found in storage")
		return nil
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}

	var loaded int
	for _, cert := range certs {
		tlsCert, err := tls.X509KeyPair(cert.PEMCert, cert.PEMKey)
		if err != nil {
			log.Warn(fmt.Sprintf("failed to load certificate %q: %v", cert.Domain, err))
			continue
		}
		tlsConfig.Certificates = append(tlsConfig.Certificates, tlsCert)
		loaded++
	}

	if loaded > 0 {
		p.tlsConfig = tlsConfig
		log.Info(fmt.Sprintf("loaded %d TLS certificate(s)", loaded))
	}
	return nil
}

// ReloadTLSCertificates re-reads certificates from storage, starting
// the HTTPS listener if it wasn't already running.
func (p *Proxy) ReloadTLSCertificates(cfg config.Config) error {
	if err := p.loadTLSCertificates(); err != nil {
		return err
	}

	if p.httpsServer != nil && p.tlsConfig != nil {
		p.httpsServer.TLSConfig = p.tlsConfig
		log.Info("reloaded TLS certificates for HTTPS server")
		return nil
	}

	if p.httpsServer == nil && p.tlsConfig != nil && len(p.tlsConfig.Certificates) > 0 {
		p.httpsServer = &http.Server{
			Addr:         cfg.HTTPSAddr,
			Handler:      http.HandlerFunc(p.handleRequest),
			TLSConfig:    p.tlsConfig,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		httpsListener, err := net.Listen("tcp", p.httpsServer.Addr)
		if err != nil {
			log.Warn(fmt.Sprintf("failed to listen on %s: %v", p.httpsServer.Addr, err))
			return err
		}
		log.Info(fmt.Sprintf("starting HTTPS server on %s", p.httpsServer.Addr))
		go func() {
			tlsListener := tls.NewListener(httpsListener, p.tlsConfig)
			if err := p.httpsServer.Serve(tlsListener); err != nil && err != http.ErrServerClosed {
				log.Error(fmt.Sprintf("HTTPS server error: %v", err))
			}
		}()
	}
	return nil
}
