package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotempsh/temps/pkg/log"
)

// ErrWorkflowCancelled is returned by Engine.Run when the run stopped
// because cancellation was observed, as opposed to a required job
// failing. Callers use errors.Is(err, ErrWorkflowCancelled) to tell the
// two apart, since a deployment's terminal state differs: cancellation
// moves it to cancelled, a required-job failure leaves it running per
// §8 S2.
var ErrWorkflowCancelled = errors.New("workflow: deployment cancelled")

// Tracker persists job status transitions as the engine runs. Jobs
// themselves write their own logs; the tracker only owns status,
// timestamps, error messages, and outputs.
type Tracker interface {
	MarkJobStarted(jobID string) error
	MarkJobResult(jobID string, status Status, message string) error
	SaveJobOutputs(jobID string, wc *Context) error
	// CancelPendingJobs marks every job still pending/waiting as
	// cancelled, recording reason as its error message.
	CancelPendingJobs(reason string) error
}

// CancellationChecker reports whether a deployment's workflow run has
// been cancelled, polled before and after each job so a cancellation
// lands as close to instantly as a cooperative scheduler allows.
type CancellationChecker interface {
	IsCancelled(workflowRunID string) (bool, error)
}

// neverCancelled is the default CancellationChecker for workflows run
// without one (tests, one-off tooling).
type neverCancelled struct{}

func (neverCancelled) IsCancelled(string) (bool, error) { return false, nil }

// Engine runs a Plan to completion: single controller, cooperative
// concurrency, jobs at the same execution order run in parallel up to
// MaxParallelJobs (default 1, strictly sequential).
type Engine struct {
	MaxParallelJobs int
	Tracker         Tracker
	Cancellation    CancellationChecker
}

// NewEngine returns an Engine with the given tracker and sane defaults.
// Pass a nil CancellationChecker to run without cancellation support.
func NewEngine(tracker Tracker, cancellation CancellationChecker) *Engine {
	if cancellation == nil {
		cancellation = neverCancelled{}
	}
	return &Engine{
		MaxParallelJobs: 1,
		Tracker:         tracker,
		Cancellation:    cancellation,
	}
}

// jobOutcome is the internal record of one job's terminal state, used to
// decide whether dependents may run.
type jobOutcome struct {
	status Status
}

// Run executes plan's jobs in dependency order against wc. It returns an
// error only for workflow-level failures (cancellation, a required job
// failing); individual optional-job failures are recorded via Tracker
// and do not stop the run.
func (e *Engine) Run(ctx context.Context, wc *Context, plan *Plan) error {
	logger := log.WithDeploymentID(wc.DeploymentID)

	levels := groupByExecutionOrder(plan.Jobs)

	outcomes := make(map[string]jobOutcome, len(plan.Jobs))
	var mu sync.Mutex

	maxParallel := e.MaxParallelJobs
	if maxParallel < 1 {
		maxParallel = 1
	}

	for _, level := range levels {
		cancelled, err := e.Cancellation.IsCancelled(wc.WorkflowRunID)
		if err != nil {
			return fmt.Errorf("workflow: check cancellation: %w", err)
		}
		if cancelled {
			if cerr := e.cancelRemaining(plan, outcomes, "deployment cancelled"); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to cancel pending jobs after cancellation observed")
			}
			return ErrWorkflowCancelled
		}

		sem := make(chan struct{}, maxParallel)
		var wg sync.WaitGroup
		var firstRequiredFailure error
		var sawCancellation bool
		var failureMu sync.Mutex

		for _, planned := range level {
			if !depsSatisfied(planned.Job, outcomes) {
				mu.Lock()
				outcomes[planned.Job.JobID()] = jobOutcome{status: StatusSkipped}
				mu.Unlock()
				if err := e.Tracker.MarkJobResult(planned.Job.JobID(), StatusSkipped, "a required dependency did not succeed"); err != nil {
					logger.Warn().Err(err).Str("job_id", planned.Job.JobID()).Msg("failed to record skipped job")
				}
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(planned PlannedJob) {
				defer wg.Done()
				defer func() { <-sem }()

				status, message, err := e.runJob(ctx, wc, planned.Job)
				if err != nil {
					logger.Error().Err(err).Str("job_id", planned.Job.JobID()).Msg("job execution error")
				}

				mu.Lock()
				outcomes[planned.Job.JobID()] = jobOutcome{status: status}
				mu.Unlock()

				if status == StatusCancelled {
					failureMu.Lock()
					sawCancellation = true
					failureMu.Unlock()
				}

				if status == StatusFailure && planned.Required {
					failureMu.Lock()
					if firstRequiredFailure == nil {
						firstRequiredFailure = fmt.Errorf("Required job '%s' failed: %s", planned.Job.JobID(), message)
					}
					failureMu.Unlock()
				}
			}(planned)
		}
		wg.Wait()

		if firstRequiredFailure != nil {
			if err := e.cancelRemaining(plan, outcomes, firstRequiredFailure.Error()); err != nil {
				logger.Warn().Err(err).Msg("failed to cancel pending jobs after required job failure")
			}
			return firstRequiredFailure
		}

		if sawCancellation {
			if err := e.cancelRemaining(plan, outcomes, "deployment cancelled"); err != nil {
				logger.Warn().Err(err).Msg("failed to cancel pending jobs after mid-flight cancellation")
			}
			return ErrWorkflowCancelled
		}
	}

	return nil
}

// runJob executes one job with pre/post cancellation checks, recording
// its transition through the tracker.
func (e *Engine) runJob(ctx context.Context, wc *Context, job Job) (Status, string, error) {
	jobID := job.JobID()

	if cancelled, err := e.Cancellation.IsCancelled(wc.WorkflowRunID); err != nil {
		return StatusFailure, "", err
	} else if cancelled {
		_ = e.Tracker.MarkJobResult(jobID, StatusCancelled, "deployment cancelled before job started")
		return StatusCancelled, "deployment cancelled", nil
	}

	if checker, ok := job.(SkipChecker); ok {
		if skip, reason := checker.ShouldSkip(wc); skip {
			_ = e.Tracker.MarkJobResult(jobID, StatusSkipped, reason)
			return StatusSkipped, reason, nil
		}
	}

	if validator, ok := job.(PrerequisiteValidator); ok {
		if err := validator.ValidatePrerequisites(wc); err != nil {
			msg := fmt.Sprintf("prerequisite validation failed: %v", err)
			_ = e.Tracker.MarkJobResult(jobID, StatusFailure, msg)
			return StatusFailure, msg, nil
		}
	}

	if err := e.Tracker.MarkJobStarted(jobID); err != nil {
		return StatusFailure, "", fmt.Errorf("mark job started: %w", err)
	}

	result, err := job.Execute(ctx, wc)
	if err != nil {
		if cleaner, ok := job.(Cleaner); ok {
			cleaner.Cleanup(wc)
		}
		msg := err.Error()
		_ = e.Tracker.MarkJobResult(jobID, StatusFailure, msg)
		return StatusFailure, msg, err
	}

	if result.Status == StatusFailure || result.Status == StatusCancelled {
		if cleaner, ok := job.(Cleaner); ok {
			cleaner.Cleanup(wc)
		}
	}

	if cancelled, cerr := e.Cancellation.IsCancelled(wc.WorkflowRunID); cerr == nil && cancelled {
		_ = e.Tracker.MarkJobResult(jobID, StatusCancelled, "deployment cancelled after job completed")
		return StatusCancelled, "deployment cancelled", nil
	}

	if err := e.Tracker.SaveJobOutputs(jobID, wc); err != nil {
		log.WithJobID(jobID).Warn().Err(err).Msg("failed to persist job outputs")
	}
	if err := e.Tracker.MarkJobResult(jobID, result.Status, result.Message); err != nil {
		return result.Status, result.Message, fmt.Errorf("mark job result: %w", err)
	}

	return result.Status, result.Message, nil
}

func (e *Engine) cancelRemaining(plan *Plan, outcomes map[string]jobOutcome, reason string) error {
	return e.Tracker.CancelPendingJobs(reason)
}

// depsSatisfied reports whether every dependency of job has already
// succeeded. A skipped, failed, or cancelled dependency blocks the job.
func depsSatisfied(job Job, outcomes map[string]jobOutcome) bool {
	for _, dep := range job.DependsOn() {
		outcome, ok := outcomes[dep]
		if !ok || outcome.status != StatusSuccess {
			return false
		}
	}
	return true
}

// groupByExecutionOrder buckets planned jobs by ExecutionOrder, returning
// buckets in ascending order.
func groupByExecutionOrder(jobs []PlannedJob) [][]PlannedJob {
	maxOrder := 0
	for _, j := range jobs {
		if j.ExecutionOrder > maxOrder {
			maxOrder = j.ExecutionOrder
		}
	}
	levels := make([][]PlannedJob, maxOrder+1)
	for _, j := range jobs {
		levels[j.ExecutionOrder] = append(levels[j.ExecutionOrder], j)
	}
	return levels
}
