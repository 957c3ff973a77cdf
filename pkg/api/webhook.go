package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/types"
)

// githubEvent is the subset of a GitHub webhook payload this core reads
// to decide whether to trigger an automatic deployment. Full event
// handling (installation bookkeeping, repository sync) lives with the
// out-of-scope API layer; this core only reacts to pushes against a
// project's tracked branch.
type githubEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// handleGitHubWebhook implements POST /webhook/git/github/events: verify
// the HMAC-SHA256 signature, then dispatch Push events (Installation and
// InstallationRepositories events are acknowledged but otherwise ignored
// here — they concern the out-of-scope API layer's app-install bookkeeping).
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeValidationError(w, "could not read request body")
		return
	}

	if err := verifyGitHubSignature(r.Header.Get("X-Hub-Signature-256"), body, s.WebhookSecret); err != nil {
		writeProblem(w, http.StatusUnauthorized, "invalid signature", err.Error())
		return
	}

	switch r.Header.Get("X-GitHub-Event") {
	case "push":
		var event githubEvent
		if err := json.Unmarshal(body, &event); err != nil {
			writeValidationError(w, "malformed push event payload")
			return
		}
		s.dispatchPush(event)
	case "installation", "installation_repositories":
		// acknowledged; app-install bookkeeping is out of scope here.
	}

	w.WriteHeader(http.StatusOK)
}

// dispatchPush finds the project tracking event's repository and, if
// automatic_deploy is on and the pushed ref matches its main branch,
// triggers a git deployment against its Production environment.
func (s *Server) dispatchPush(event githubEvent) {
	branch := strings.TrimPrefix(event.Ref, "refs/heads/")

	projects, err := s.Store.ListProjects()
	if err != nil {
		log.Error(fmt.Sprintf("api: webhook: list projects: %v", err))
		return
	}
	for _, proj := range projects {
		repoFullName := proj.RepoOwner + "/" + proj.RepoName
		if repoFullName != event.Repository.FullName {
			continue
		}
		if !proj.AutomaticDeploy || branch != proj.MainBranch {
			continue
		}

		envs, err := s.Store.ListEnvironmentsByProject(proj.ID)
		if err != nil {
			log.Error(fmt.Sprintf("api: webhook: list environments for %q: %v", proj.Slug, err))
			return
		}
		for _, env := range envs {
			if env.Name != "Production" {
				continue
			}
			metadata := map[string]string{"ref": event.After}
			if _, err := s.triggerDeployment(proj.ID, env.ID, types.SourceGit, metadata); err != nil {
				log.Error(fmt.Sprintf("api: webhook: trigger deployment for %q: %v", proj.Slug, err))
			}
			return
		}
	}
}

// handleGitHubInstall implements GET /webhook/git/github/install: the
// GitHub App install flow redirects back here, and this core simply
// bounces the browser to the dashboard (which owns the rest of the
// install UX).
func (s *Server) handleGitHubInstall(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// verifyGitHubSignature checks header against the HMAC-SHA256 of body
// keyed by secret, in the "sha256=<hex>" form GitHub sends.
func verifyGitHubSignature(header string, body []byte, secret string) error {
	header = strings.TrimSpace(header)
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("missing or unsupported signature header")
	}
	wantHex := strings.TrimPrefix(header, prefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	gotHex := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(wantHex), []byte(gotHex)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
