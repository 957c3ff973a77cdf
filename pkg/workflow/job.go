package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// LogWriter streams log lines for a single deployment job. Jobs call
// Context.Log; the concrete writer persists (or discards, in tests) them.
type LogWriter interface {
	WriteLog(message string) error
}

// NopLogWriter discards every log line. Useful in tests and for jobs run
// outside a deployment (e.g. dry-run planning).
type NopLogWriter struct{}

// WriteLog implements LogWriter.
func (NopLogWriter) WriteLog(string) error { return nil }

// Context is the per-run state threaded through every job. Reading a
// value written before the run started, or by a job that has already
// returned Success, always succeeds; reading one written by a job that
// hasn't completed is a programming error the caller must avoid by
// respecting job dependencies.
type Context struct {
	WorkflowRunID string
	DeploymentID  string
	ProjectID     string
	EnvironmentID string
	WorkDir       string
	Log           LogWriter

	mu        sync.RWMutex
	vars      map[string]json.RawMessage
	outputs   map[string]map[string]json.RawMessage
	artifacts map[string]map[string]string
}

// NewContext creates an empty workflow context for one deployment run.
func NewContext(workflowRunID, deploymentID, projectID, environmentID string, logWriter LogWriter) *Context {
	if logWriter == nil {
		logWriter = NopLogWriter{}
	}
	return &Context{
		WorkflowRunID: workflowRunID,
		DeploymentID:  deploymentID,
		ProjectID:     projectID,
		EnvironmentID: environmentID,
		Log:           logWriter,
		vars:          make(map[string]json.RawMessage),
		outputs:       make(map[string]map[string]json.RawMessage),
		artifacts:     make(map[string]map[string]string),
	}
}

// SetVar stores a context-global variable.
func (c *Context) SetVar(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("workflow: marshal var %q: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = data
	return nil
}

// GetVar decodes a context-global variable into dest. It returns
// (false, nil) if the variable was never set.
func GetVar[T any](c *Context, key string) (T, bool, error) {
	var zero T
	c.mu.RLock()
	data, ok := c.vars[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("workflow: unmarshal var %q: %w", key, err)
	}
	return value, true, nil
}

// SetOutput records an output value produced by jobID, visible to
// successor jobs once jobID returns success.
func (c *Context) SetOutput(jobID, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("workflow: marshal output %s/%s: %w", jobID, name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	outputs, ok := c.outputs[jobID]
	if !ok {
		outputs = make(map[string]json.RawMessage)
		c.outputs[jobID] = outputs
	}
	outputs[name] = data
	return nil
}

// GetOutput decodes an output produced by jobID. It returns (false, nil)
// if jobID never set that output name.
func GetOutput[T any](c *Context, jobID, name string) (T, bool, error) {
	var zero T
	c.mu.RLock()
	data, ok := c.outputs[jobID][name]
	c.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("workflow: unmarshal output %s/%s: %w", jobID, name, err)
	}
	return value, true, nil
}

// SetArtifact records the on-disk location of a file jobID produced.
// The path must remain valid until the workflow ends.
func (c *Context) SetArtifact(jobID, name, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	artifacts, ok := c.artifacts[jobID]
	if !ok {
		artifacts = make(map[string]string)
		c.artifacts[jobID] = artifacts
	}
	artifacts[name] = path
}

// GetArtifact returns the path jobID recorded under name, if any.
func (c *Context) GetArtifact(jobID, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok := c.artifacts[jobID][name]
	return path, ok
}

// Status is the lifecycle state of a single job execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// Result is what a Job.Execute call reports back to the engine.
type Result struct {
	Status  Status
	Message string
}

// Success builds a Result with StatusSuccess.
func Success(message string) Result { return Result{Status: StatusSuccess, Message: message} }

// Failure builds a Result with StatusFailure.
func Failure(message string) Result { return Result{Status: StatusFailure, Message: message} }

// Skipped builds a Result with StatusSkipped.
func Skipped(reason string) Result { return Result{Status: StatusSkipped, Message: reason} }

// Job is one node of a deployment's workflow DAG.
type Job interface {
	// JobID is the stable identifier used for dependency references and
	// output/artifact lookups.
	JobID() string
	Name() string
	// DependsOn lists the JobIDs that must reach StatusSuccess before this
	// job is eligible to run.
	DependsOn() []string
	Execute(ctx context.Context, wc *Context) (Result, error)
}

// SkipChecker is an optional interface a Job can implement to be skipped
// based on context state, without being removed from the DAG.
type SkipChecker interface {
	ShouldSkip(wc *Context) (bool, string)
}

// PrerequisiteValidator is an optional interface a Job can implement to
// fail fast with a clear message when required context is missing,
// instead of failing partway through Execute.
type PrerequisiteValidator interface {
	ValidatePrerequisites(wc *Context) error
}

// Cleaner is an optional interface a Job can implement to release
// resources after a failed or cancelled run.
type Cleaner interface {
	Cleanup(wc *Context)
}
