package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJob is a minimal Job implementation for engine tests.
type fakeJob struct {
	id        string
	deps      []string
	result    Result
	err       error
	onExecute func()
}

func (j *fakeJob) JobID() string      { return j.id }
func (j *fakeJob) Name() string       { return j.id }
func (j *fakeJob) DependsOn() []string { return j.deps }

func (j *fakeJob) Execute(ctx context.Context, wc *Context) (Result, error) {
	if j.onExecute != nil {
		j.onExecute()
	}
	return j.result, j.err
}

// fakeTracker records every status transition in memory, satisfying the
// Tracker interface without a storage backend.
type fakeTracker struct {
	mu       sync.Mutex
	statuses map[string]Status
	messages map[string]string
	started  map[string]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		statuses: make(map[string]Status),
		messages: make(map[string]string),
		started:  make(map[string]bool),
	}
}

func (t *fakeTracker) MarkJobStarted(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[jobID] = true
	t.statuses[jobID] = StatusRunning
	return nil
}

func (t *fakeTracker) MarkJobResult(jobID string, status Status, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[jobID] = status
	t.messages[jobID] = message
	return nil
}

func (t *fakeTracker) SaveJobOutputs(jobID string, wc *Context) error { return nil }

func (t *fakeTracker) CancelPendingJobs(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, status := range t.statuses {
		if status == StatusPending || status == StatusWaiting {
			t.statuses[id] = StatusCancelled
			t.messages[id] = reason
		}
	}
	return nil
}

func (t *fakeTracker) status(jobID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statuses[jobID]
}

func (t *fakeTracker) initPending(jobIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range jobIDs {
		t.statuses[id] = StatusPending
	}
}

// fixedCancellation reports cancelled=true from a given call index onward.
type fixedCancellation struct {
	mu          sync.Mutex
	calls       int
	cancelAfter int
}

func (f *fixedCancellation) IsCancelled(string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.cancelAfter >= 0 && f.calls > f.cancelAfter, nil
}

func TestEngine_HappyPath(t *testing.T) {
	download := &fakeJob{id: "download", result: Success("ok")}
	build := &fakeJob{id: "build", deps: []string{"download"}, result: Success("ok")}
	complete := &fakeJob{id: "mark_deployment_complete", deps: []string{"build"}, result: Success("ok")}

	tracker := newFakeTracker()
	tracker.initPending("download", "build", "mark_deployment_complete")

	plan, err := NewPlanner().Plan([]JobConfig{
		{Job: download, RequiredForCompletion: true},
		{Job: build, RequiredForCompletion: true},
		{Job: complete, RequiredForCompletion: true},
	})
	require.NoError(t, err)

	engine := NewEngine(tracker, nil)
	wc := NewContext("run-1", "dep-1", "proj-1", "env-1", nil)

	err = engine.Run(context.Background(), wc, plan)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, tracker.status("download"))
	assert.Equal(t, StatusSuccess, tracker.status("build"))
	assert.Equal(t, StatusSuccess, tracker.status("mark_deployment_complete"))
}

// TestEngine_RequiredJobFailureCancelsRemainder matches spec scenario S2: a
// required job failing must cancel every still-pending job and never reach
// mark_deployment_complete.
func TestEngine_RequiredJobFailureCancelsRemainder(t *testing.T) {
	download := &fakeJob{id: "download", result: Success("ok")}
	deployContainer := &fakeJob{
		id:     "deploy_container",
		deps:   []string{"download"},
		result: Failure("image pull backoff"),
	}
	configureCrons := &fakeJob{id: "configure_crons", deps: []string{"deploy_container"}, result: Success("ok")}
	complete := &fakeJob{id: "mark_deployment_complete", deps: []string{"configure_crons"}, result: Success("ok")}

	tracker := newFakeTracker()
	tracker.initPending("download", "deploy_container", "configure_crons", "mark_deployment_complete")

	plan, err := NewPlanner().Plan([]JobConfig{
		{Job: download, RequiredForCompletion: true},
		{Job: deployContainer, RequiredForCompletion: true},
		{Job: configureCrons, RequiredForCompletion: false},
		{Job: complete, RequiredForCompletion: true},
	})
	require.NoError(t, err)

	engine := NewEngine(tracker, nil)
	wc := NewContext("run-2", "dep-2", "proj-1", "env-1", nil)

	err = engine.Run(context.Background(), wc, plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Required job 'deploy_container' failed`)
	assert.Contains(t, err.Error(), "image pull backoff")

	assert.Equal(t, StatusFailure, tracker.status("deploy_container"))
	assert.Equal(t, StatusCancelled, tracker.status("configure_crons"))
	assert.Equal(t, StatusCancelled, tracker.status("mark_deployment_complete"))
}

// TestEngine_CancellationMidFlight matches spec scenario S6: the
// post-execute cancellation check fires after an in-flight job completes,
// and no further jobs run.
func TestEngine_CancellationMidFlight(t *testing.T) {
	build := &fakeJob{id: "build", result: Success("ok")}
	deploy := &fakeJob{id: "deploy_container", deps: []string{"build"}, result: Success("ok")}

	tracker := newFakeTracker()
	tracker.initPending("build", "deploy_container")

	plan, err := NewPlanner().Plan([]JobConfig{
		{Job: build, RequiredForCompletion: true},
		{Job: deploy, RequiredForCompletion: true},
	})
	require.NoError(t, err)

	// cancelAfter=2: the per-level check and build's pre-execute check both
	// come back clean; build's post-execute check (the 3rd call) is the one
	// that observes cancellation, matching "in-flight job completes, then
	// the cancellation check fires".
	cancellation := &fixedCancellation{cancelAfter: 2}
	engine := NewEngine(tracker, cancellation)
	wc := NewContext("run-3", "dep-3", "proj-1", "env-1", nil)

	err = engine.Run(context.Background(), wc, plan)
	require.ErrorIs(t, err, ErrWorkflowCancelled)

	assert.Equal(t, StatusCancelled, tracker.status("build"))
	assert.Equal(t, StatusCancelled, tracker.status("deploy_container"))
}

func TestPlanner_RejectsCycle(t *testing.T) {
	a := &fakeJob{id: "a", deps: []string{"b"}}
	b := &fakeJob{id: "b", deps: []string{"a"}}

	_, err := NewPlanner().Plan([]JobConfig{
		{Job: a, RequiredForCompletion: true},
		{Job: b, RequiredForCompletion: true},
	})
	require.Error(t, err)
	var valErr *JobValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestPlanner_RejectsDanglingDependency(t *testing.T) {
	a := &fakeJob{id: "a", deps: []string{"ghost"}}

	_, err := NewPlanner().Plan([]JobConfig{
		{Job: a, RequiredForCompletion: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `depends on unknown job "ghost"`)
}

func TestContext_SetGetOutput(t *testing.T) {
	wc := NewContext("run-4", "dep-4", "proj-1", "env-1", nil)

	type buildOutput struct {
		ImageRef string `json:"image_ref"`
	}

	require.NoError(t, wc.SetOutput("build", "image", buildOutput{ImageRef: "ghcr.io/acme/app:v1"}))

	got, ok, err := GetOutput[buildOutput](wc, "build", "image")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ghcr.io/acme/app:v1", got.ImageRef)

	_, ok, err = GetOutput[buildOutput](wc, "build", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContext_Artifacts(t *testing.T) {
	wc := NewContext("run-5", "dep-5", "proj-1", "env-1", nil)
	wc.SetArtifact("download", "repo_dir", "/tmp/work/repo")

	path, ok := wc.GetArtifact("download", "repo_dir")
	require.True(t, ok)
	assert.Equal(t, "/tmp/work/repo", path)

	_, ok = wc.GetArtifact("download", "missing")
	assert.False(t, ok)
}

func TestGroupByExecutionOrder_ParallelSameLevel(t *testing.T) {
	var mu sync.Mutex
	var executionOrder []string
	track := func(name string) func() {
		return func() {
			mu.Lock()
			executionOrder = append(executionOrder, name)
			mu.Unlock()
		}
	}

	download := &fakeJob{id: "download", result: Success("ok"), onExecute: track("download")}
	lintA := &fakeJob{id: "lint_a", deps: []string{"download"}, result: Success("ok"), onExecute: track("lint_a")}
	lintB := &fakeJob{id: "lint_b", deps: []string{"download"}, result: Success("ok"), onExecute: track("lint_b")}

	tracker := newFakeTracker()
	tracker.initPending("download", "lint_a", "lint_b")

	plan, err := NewPlanner().Plan([]JobConfig{
		{Job: download, RequiredForCompletion: true},
		{Job: lintA, RequiredForCompletion: false},
		{Job: lintB, RequiredForCompletion: false},
	})
	require.NoError(t, err)

	engine := NewEngine(tracker, nil)
	engine.MaxParallelJobs = 2
	wc := NewContext("run-6", "dep-6", "proj-1", "env-1", nil)

	require.NoError(t, engine.Run(context.Background(), wc, plan))
	require.Len(t, executionOrder, 3)
	assert.Equal(t, "download", executionOrder[0])
	assert.ElementsMatch(t, []string{"lint_a", "lint_b"}, executionOrder[1:])
}

func TestFakeJobSatisfiesInterface(t *testing.T) {
	var _ Job = (*fakeJob)(nil)
}
