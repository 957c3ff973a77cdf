package workflow

import (
	"fmt"
	"time"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// StoreTracker persists job status transitions to a Store's
// deployment_jobs rows, mirroring a status flag trigger: once every
// required job for a deployment reaches success, it advances the
// deployment and its environment's current_deployment_id.
type StoreTracker struct {
	store        storage.Store
	deploymentID string
}

// NewStoreTracker returns a Tracker bound to one deployment's jobs.
func NewStoreTracker(store storage.Store, deploymentID string) *StoreTracker {
	return &StoreTracker{store: store, deploymentID: deploymentID}
}

func (t *StoreTracker) findJob(jobID string) (*types.DeploymentJob, error) {
	jobs, err := t.store.ListDeploymentJobs(t.deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list deployment jobs: %w", err)
	}
	for _, job := range jobs {
		if job.JobID == jobID {
			return job, nil
		}
	}
	return nil, fmt.Errorf("job %q not found for deployment %q", jobID, t.deploymentID)
}

// MarkJobStarted implements Tracker.
func (t *StoreTracker) MarkJobStarted(jobID string) error {
	job, err := t.findJob(jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobRunning
	job.StartedAt = time.Now()
	return t.store.UpdateDeploymentJob(job)
}

// MarkJobResult implements Tracker.
func (t *StoreTracker) MarkJobResult(jobID string, status Status, message string) error {
	job, err := t.findJob(jobID)
	if err != nil {
		return err
	}
	job.Status = toEntityStatus(status)
	job.ErrorMessage = message
	switch status {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusSkipped:
		job.FinishedAt = time.Now()
	}
	if err := t.store.UpdateDeploymentJob(job); err != nil {
		return err
	}
	if status == StatusSuccess {
		return t.maybeCompleteDeployment()
	}
	return nil
}

// SaveJobOutputs implements Tracker.
func (t *StoreTracker) SaveJobOutputs(jobID string, wc *Context) error {
	job, err := t.findJob(jobID)
	if err != nil {
		return err
	}
	wc.mu.RLock()
	outputs := wc.outputs[jobID]
	wc.mu.RUnlock()
	if len(outputs) == 0 {
		return nil
	}
	encoded := make(map[string][]byte, len(outputs))
	for name, raw := range outputs {
		encoded[name] = []byte(raw)
	}
	job.Outputs = encoded
	return t.store.UpdateDeploymentJob(job)
}

// CancelPendingJobs implements Tracker.
func (t *StoreTracker) CancelPendingJobs(reason string) error {
	jobs, err := t.store.ListDeploymentJobs(t.deploymentID)
	if err != nil {
		return fmt.Errorf("list deployment jobs: %w", err)
	}
	now := time.Now()
	for _, job := range jobs {
		if job.Status != types.JobPending && job.Status != types.JobWaiting {
			continue
		}
		job.Status = types.JobCancelled
		job.ErrorMessage = reason
		job.FinishedAt = now
		if err := t.store.UpdateDeploymentJob(job); err != nil {
			return fmt.Errorf("cancel job %q: %w", job.JobID, err)
		}
	}
	return nil
}

// maybeCompleteDeployment marks the deployment completed once every
// required job has reached success, then advances the owning
// environment's current deployment pointer.
func (t *StoreTracker) maybeCompleteDeployment() error {
	jobs, err := t.store.ListDeploymentJobs(t.deploymentID)
	if err != nil {
		return fmt.Errorf("list deployment jobs: %w", err)
	}
	for _, job := range jobs {
		if job.JobConfig.RequiredForCompletion && job.Status != types.JobSuccess {
			return nil
		}
	}

	dep, err := t.store.GetDeployment(t.deploymentID)
	if err != nil {
		return fmt.Errorf("get deployment: %w", err)
	}
	if dep.State == types.DeploymentCompleted {
		return nil
	}
	dep.State = types.DeploymentCompleted
	dep.FinishedAt = time.Now()
	if err := t.store.UpdateDeployment(dep); err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}

	env, err := t.store.GetEnvironment(dep.EnvironmentID)
	if err != nil {
		return fmt.Errorf("get environment: %w", err)
	}
	env.CurrentDeploymentID = dep.ID
	return t.store.UpdateEnvironment(env)
}

// StoreCancellationChecker implements CancellationChecker by reading the
// deployment row's CancelRequested flag, the only way an operator-
// initiated cancel reaches the engine: there is no in-process signal
// between the API handler that receives a cancel request and the
// goroutine running the workflow, so the engine polls storage the same
// way it polls everything else about the run.
type StoreCancellationChecker struct {
	store        storage.Store
	deploymentID string
}

// NewStoreCancellationChecker returns a CancellationChecker bound to one
// deployment.
func NewStoreCancellationChecker(store storage.Store, deploymentID string) *StoreCancellationChecker {
	return &StoreCancellationChecker{store: store, deploymentID: deploymentID}
}

// IsCancelled implements CancellationChecker.
func (c *StoreCancellationChecker) IsCancelled(string) (bool, error) {
	dep, err := c.store.GetDeployment(c.deploymentID)
	if err != nil {
		return false, fmt.Errorf("get deployment: %w", err)
	}
	return dep.CancelRequested, nil
}

func toEntityStatus(status Status) types.JobStatus {
	switch status {
	case StatusPending:
		return types.JobPending
	case StatusWaiting:
		return types.JobWaiting
	case StatusRunning:
		return types.JobRunning
	case StatusSuccess:
		return types.JobSuccess
	case StatusFailure:
		return types.JobFailure
	case StatusCancelled:
		return types.JobCancelled
	case StatusSkipped:
		return types.JobSkipped
	default:
		return types.JobPending
	}
}
