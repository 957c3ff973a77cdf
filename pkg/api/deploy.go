package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gotempsh/temps/pkg/jobs"
	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/types"
	"github.com/gotempsh/temps/pkg/workflow"
)

// deploymentResponse is the 202 body every deploy-trigger endpoint
// returns.
type deploymentResponse struct {
	ID         string            `json:"id"`
	Slug       string            `json:"slug"`
	State      types.DeploymentState `json:"state"`
	SourceType types.SourceType  `json:"source_type"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toDeploymentResponse(d *types.Deployment) deploymentResponse {
	return deploymentResponse{
		ID:         d.ID,
		Slug:       d.Slug,
		State:      d.State,
		SourceType: d.SourceType,
		CreatedAt:  d.StartedAt,
	}
}

type deployImageRequest struct {
	ImageRef        string            `json:"image_ref"`
	ExternalImageID string            `json:"external_image_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// handleDeployImage implements POST
// /projects/{pid}/environments/{eid}/deploy/image.
func (s *Server) handleDeployImage(w http.ResponseWriter, r *http.Request, projectID, environmentID string) {
	var req deployImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "malformed request body")
		return
	}
	if req.ImageRef == "" {
		writeValidationError(w, "image_ref is required")
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["image_ref"] = req.ImageRef
	if req.ExternalImageID != "" {
		metadata["external_image_id"] = req.ExternalImageID
	}

	dep, err := s.triggerDeployment(projectID, environmentID, types.SourceDockerImage, metadata)
	if err != nil {
		s.writeDeployError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDeploymentResponse(dep))
}

type deployStaticRequest struct {
	StaticBundleID string            `json:"static_bundle_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// handleDeployStatic implements POST
// /projects/{pid}/environments/{eid}/deploy/static.
func (s *Server) handleDeployStatic(w http.ResponseWriter, r *http.Request, projectID, environmentID string) {
	var req deployStaticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "malformed request body")
		return
	}
	if req.StaticBundleID == "" {
		writeValidationError(w, "static_bundle_id is required")
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	// The bundle's own storage key, as returned by the upload endpoint,
	// is opaque and passed straight through to the deploy-static job.
	metadata["bundle_path"] = req.StaticBundleID

	dep, err := s.triggerDeployment(projectID, environmentID, types.SourceStaticBundle, metadata)
	if err != nil {
		s.writeDeployError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDeploymentResponse(dep))
}

type uploadStaticResponse struct {
	ID        string `json:"id"`
	BlobPath  string `json:"blob_path"`
	SizeBytes int64  `json:"size_bytes"`
}

// maxUploadBytes refuses a multipart body over this size before reading
// it into the uploads directory.
const maxUploadBytes = 2 << 30 // 2 GiB

// handleUploadStatic implements POST /projects/{pid}/upload/static. The
// uploaded file is stored under the job deps' data directory, keyed by a
// fresh opaque ID; nothing upstream interprets the key's structure.
func (s *Server) handleUploadStatic(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.ContentLength > maxUploadBytes {
		writeValidationError(w, "upload exceeds maximum size")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	id := uuid.NewString()
	blobPath := filepath.Join("uploads", id+filepath.Ext(header.Filename))
	destPath := filepath.Join(s.JobDeps.DataDir, blobPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		writeInternalError(w, err)
		return
	}

	dest, err := os.Create(destPath)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	defer dest.Close()

	written, err := io.CopyN(dest, file, maxUploadBytes+1)
	if err != nil && err != io.EOF {
		writeInternalError(w, err)
		return
	}
	if written > maxUploadBytes {
		_ = os.Remove(destPath)
		writeValidationError(w, "upload exceeds maximum size")
		return
	}

	writeJSON(w, http.StatusCreated, uploadStaticResponse{ID: id, BlobPath: blobPath, SizeBytes: written})
}

type externalImageRequest struct {
	ImageRef string            `json:"image_ref"`
	Digest   string            `json:"digest,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type externalImageResponse struct {
	ID       string `json:"id"`
	ImageRef string `json:"image_ref"`
}

// handleExternalImage implements POST /projects/{pid}/external-images.
// It registers a reference to an already-built image without running a
// deployment; the registered ID is later usable wherever an image_ref is
// accepted.
func (s *Server) handleExternalImage(w http.ResponseWriter, r *http.Request, projectID string) {
	var req externalImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "malformed request body")
		return
	}
	if req.ImageRef == "" {
		writeValidationError(w, "image_ref is required")
		return
	}
	writeJSON(w, http.StatusCreated, externalImageResponse{ID: uuid.NewString(), ImageRef: req.ImageRef})
}

// handleDeployment implements GET /deployments/{id} and POST
// /deployments/{id}/cancel.
func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/deployments/"):]
	if id, ok := strings.CutSuffix(path, "/cancel"); ok && r.Method == http.MethodPost {
		if id == "" {
			writeNotFound(w, "deployment")
			return
		}
		s.handleCancelDeployment(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if path == "" {
		writeNotFound(w, "deployment")
		return
	}
	dep, err := s.Store.GetDeployment(path)
	if err != nil {
		writeNotFound(w, "deployment")
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(dep))
}

// writeDeployError maps a triggerDeployment error to the right HTTP
// status: a *workflow.JobValidationError is a caller-visible bad
// configuration (400); anything else storage/runtime related is a 500.
func (s *Server) writeDeployError(w http.ResponseWriter, err error) {
	if _, ok := err.(*workflow.JobValidationError); ok {
		writeValidationError(w, err.Error())
		return
	}
	writeInternalError(w, err)
}

// triggerDeployment is the deployment API's entry point into the
// workflow engine: it creates the Deployment row, plans and materializes
// its DeploymentJob rows, advances the deployment to running, and
// launches the engine in the background. It returns as soon as the rows
// are committed, matching the CLI's "trigger returns immediately without
// --wait" contract.
func (s *Server) triggerDeployment(projectID, environmentID string, sourceType types.SourceType, metadata map[string]string) (*types.Deployment, error) {
	if _, err := s.Store.GetProject(projectID); err != nil {
		return nil, fmt.Errorf("project %q not found", projectID)
	}
	if _, err := s.Store.GetEnvironment(environmentID); err != nil {
		return nil, fmt.Errorf("environment %q not found", environmentID)
	}

	dep := &types.Deployment{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		EnvironmentID: environmentID,
		Slug:          "dep-" + uuid.NewString()[:8],
		State:         types.DeploymentPending,
		SourceType:    sourceType,
		Metadata:      metadata,
		StartedAt:     time.Now(),
	}
	if err := s.Store.CreateDeployment(dep); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	configs := jobs.BuildPlan(s.JobDeps, sourceType)
	plan, err := workflow.NewPlanner().Plan(configs)
	if err != nil {
		dep.State = types.DeploymentFailed
		dep.FinishedAt = time.Now()
		_ = s.Store.UpdateDeployment(dep)
		return nil, err
	}

	for _, planned := range plan.Jobs {
		job := &types.DeploymentJob{
			ID:             uuid.NewString(),
			DeploymentID:   dep.ID,
			JobID:          planned.Job.JobID(),
			ExecutionOrder: planned.ExecutionOrder,
			Status:         types.JobPending,
			LogID:          dep.ID,
			JobConfig:      types.JobConfig{RequiredForCompletion: planned.Required},
		}
		if err := s.Store.CreateDeploymentJob(job); err != nil {
			dep.State = types.DeploymentFailed
			dep.FinishedAt = time.Now()
			_ = s.Store.UpdateDeployment(dep)
			return nil, fmt.Errorf("materialize job %q: %w", job.JobID, err)
		}
	}

	dep.State = types.DeploymentRunning
	if err := s.Store.UpdateDeployment(dep); err != nil {
		return nil, fmt.Errorf("mark deployment running: %w", err)
	}

	go s.runDeployment(dep, plan)

	return dep, nil
}

// runDeployment drives dep's plan to completion off the request's
// goroutine. The tracker advances dep.State to completed once every
// required job succeeds; a required-job failure leaves it at running,
// per this engine's "only the terminal completion job commits traffic
// cut-over" rule. Cancellation is the one other path that ends the run:
// it moves dep.State to cancelled, since cancelled is terminal from any
// non-terminal state.
func (s *Server) runDeployment(dep *types.Deployment, plan *workflow.Plan) {
	logger := log.WithDeploymentID(dep.ID)
	logWriter := workflow.NewStoreLogWriter(s.Store, dep.ID)
	wc := workflow.NewContext(dep.ID, dep.ID, dep.ProjectID, dep.EnvironmentID, logWriter)
	tracker := workflow.NewStoreTracker(s.Store, dep.ID)
	cancellation := workflow.NewStoreCancellationChecker(s.Store, dep.ID)
	engine := workflow.NewEngine(tracker, cancellation)

	err := engine.Run(context.Background(), wc, plan)
	if err == nil {
		return
	}

	if errors.Is(err, workflow.ErrWorkflowCancelled) {
		logger.Info().Msg("deployment workflow cancelled")
		s.markDeploymentCancelled(dep.ID)
		return
	}

	logger.Error().Err(err).Msg("deployment workflow failed")
}

// markDeploymentCancelled flips dep.State to cancelled if it is still in
// a non-terminal state; the job rows themselves were already flipped by
// Tracker.CancelPendingJobs inside the engine.
func (s *Server) markDeploymentCancelled(deploymentID string) {
	dep, err := s.Store.GetDeployment(deploymentID)
	if err != nil {
		log.WithDeploymentID(deploymentID).Error().Err(err).Msg("load deployment after cancellation")
		return
	}
	if dep.State == types.DeploymentCompleted || dep.State == types.DeploymentCancelled || dep.State == types.DeploymentFailed {
		return
	}
	dep.State = types.DeploymentCancelled
	dep.FinishedAt = time.Now()
	if err := s.Store.UpdateDeployment(dep); err != nil {
		log.WithDeploymentID(deploymentID).Error().Err(err).Msg("mark deployment cancelled")
	}
}

// handleCancelDeployment implements POST /deployments/{id}/cancel: it
// requests cancellation of a running deployment. The engine observes the
// flag cooperatively (before and after each job), so the response does
// not wait for the workflow to actually stop.
func (s *Server) handleCancelDeployment(w http.ResponseWriter, r *http.Request, id string) {
	dep, err := s.Store.GetDeployment(id)
	if err != nil {
		writeNotFound(w, "deployment")
		return
	}
	if dep.State != types.DeploymentPending && dep.State != types.DeploymentRunning {
		writeValidationError(w, fmt.Sprintf("deployment %q is already %s", id, dep.State))
		return
	}
	dep.CancelRequested = true
	if err := s.Store.UpdateDeployment(dep); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeploymentResponse(dep))
}
