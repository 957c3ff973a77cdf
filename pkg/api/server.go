package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gotempsh/temps/pkg/ingress"
	"github.com/gotempsh/temps/pkg/jobs"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// Server is the deployment core's HTTP API: deploy triggers, the GitHub
// push webhook, the CAPTCHA verify endpoint and its static solver
// assets, and health/ready/metrics.
type Server struct {
	Store         storage.Store
	JobDeps       jobs.Dependencies
	Captcha       *ingress.CaptchaGate
	BearerToken   string // empty disables auth, used only in tests
	WebhookSecret string

	mux *http.ServeMux
}

// NewServer builds a Server and registers every route.
func NewServer(store storage.Store, jobDeps jobs.Dependencies, captcha *ingress.CaptchaGate, bearerToken, webhookSecret string) *Server {
	s := &Server{
		Store:         store,
		JobDeps:       jobDeps,
		Captcha:       captcha,
		BearerToken:   bearerToken,
		WebhookSecret: webhookSecret,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler to mount on a listener.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.Handle("/metrics", metricsHandler())

	s.mux.HandleFunc("/projects/", s.withAuth(s.handleProjectScoped))
	s.mux.HandleFunc("/deployments/", s.withAuth(s.handleDeployment))

	s.mux.HandleFunc("/webhook/git/github/events", s.handleGitHubWebhook)
	s.mux.HandleFunc("/webhook/git/github/install", s.handleGitHubInstall)

	s.mux.HandleFunc("/_temps/captcha/verify", s.handleCaptchaVerify)
	s.mux.HandleFunc("/__temps/temps_captcha_wasm.js", s.handleCaptchaAsset)
	s.mux.HandleFunc("/__temps/temps_captcha_wasm_bg.wasm", s.handleCaptchaAsset)
}

// withAuth enforces the deployment API's bearer-token requirement. An
// empty s.BearerToken disables the check (used by tests that exercise
// handlers directly).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.BearerToken == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token != s.BearerToken {
			writeUnauthorized(w)
			return
		}
		next(w, r)
	}
}

// handleProjectScoped dispatches every /projects/{pid}/... route by
// matching its tail, since the stdlib ServeMux used here predates Go
// 1.22's method-aware patterns being assumed available everywhere this
// binary runs. {pid} accepts a slug or raw ID and {eid} a slug, name, or
// raw ID, per the CLI's "--project <slug|id> --environment <name>"
// contract.
func (s *Server) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/projects/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeNotFound(w, "route")
		return
	}

	project, err := s.resolveProject(parts[0])
	if err != nil {
		writeNotFound(w, "project")
		return
	}

	switch {
	case len(parts) == 5 && parts[1] == "environments" && parts[3] == "deploy" && parts[4] == "image" && r.Method == http.MethodPost:
		env, err := s.resolveEnvironment(project.ID, parts[2])
		if err != nil {
			writeNotFound(w, "environment")
			return
		}
		s.handleDeployImage(w, r, project.ID, env.ID)
	case len(parts) == 5 && parts[1] == "environments" && parts[3] == "deploy" && parts[4] == "static" && r.Method == http.MethodPost:
		env, err := s.resolveEnvironment(project.ID, parts[2])
		if err != nil {
			writeNotFound(w, "environment")
			return
		}
		s.handleDeployStatic(w, r, project.ID, env.ID)
	case len(parts) == 3 && parts[1] == "upload" && parts[2] == "static" && r.Method == http.MethodPost:
		s.handleUploadStatic(w, r, project.ID)
	case len(parts) == 2 && parts[1] == "external-images" && r.Method == http.MethodPost:
		s.handleExternalImage(w, r, project.ID)
	default:
		writeNotFound(w, "route")
	}
}

// resolveProject accepts a raw ID or a slug.
func (s *Server) resolveProject(idOrSlug string) (*types.Project, error) {
	if p, err := s.Store.GetProject(idOrSlug); err == nil {
		return p, nil
	}
	return s.Store.GetProjectBySlug(idOrSlug)
}

// resolveEnvironment accepts a raw ID, a slug, or an environment's display
// name (the form the CLI's --environment flag takes).
func (s *Server) resolveEnvironment(projectID, idNameOrSlug string) (*types.Environment, error) {
	if env, err := s.Store.GetEnvironment(idNameOrSlug); err == nil && env.ProjectID == projectID {
		return env, nil
	}
	if env, err := s.Store.GetEnvironmentBySlug(projectID, idNameOrSlug); err == nil {
		return env, nil
	}
	envs, err := s.Store.ListEnvironmentsByProject(projectID)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if env.Name == idNameOrSlug {
			return env, nil
		}
	}
	return nil, fmt.Errorf("environment %q not found", idNameOrSlug)
}
