package workflow

import "fmt"

// JobValidationError reports a workflow graph the planner refuses to run:
// a dependency cycle or a reference to a job that was never registered.
type JobValidationError struct {
	Reason string
}

func (e *JobValidationError) Error() string {
	return fmt.Sprintf("workflow: job validation failed: %s", e.Reason)
}

// JobConfig attaches planner-level metadata to a Job that its own
// definition doesn't carry: whether the deployment must wait for (and
// succeed on) this job to be considered complete.
type JobConfig struct {
	Job                   Job
	RequiredForCompletion bool
}

// PlannedJob is one entry of a Plan: a job paired with the execution
// order the planner assigned it.
type PlannedJob struct {
	Job            Job
	ExecutionOrder int
	Required       bool
}

// Plan is the materialized, validated, and ordered form of a set of jobs.
type Plan struct {
	Jobs []PlannedJob
}

// Planner validates a job graph and assigns execution order by
// dependency-depth (topological level), rejecting cycles and dangling
// dependency references up front so the engine never discovers a bad
// graph mid-run.
type Planner struct{}

// NewPlanner returns a Planner. It has no state; it exists as a type so
// future validation options (e.g. a max-depth limit) have somewhere to
// live without changing Plan's call sites.
func NewPlanner() *Planner { return &Planner{} }

// Plan validates configs and assigns each job an execution order equal
// to the length of its longest dependency chain, so jobs with the same
// order can run in parallel and never depend on a job with an equal or
// higher order.
func (p *Planner) Plan(configs []JobConfig) (*Plan, error) {
	byID := make(map[string]JobConfig, len(configs))
	for _, cfg := range configs {
		if _, exists := byID[cfg.Job.JobID()]; exists {
			return nil, &JobValidationError{Reason: fmt.Sprintf("duplicate job id %q", cfg.Job.JobID())}
		}
		byID[cfg.Job.JobID()] = cfg
	}

	for _, cfg := range configs {
		for _, dep := range cfg.Job.DependsOn() {
			if _, ok := byID[dep]; !ok {
				return nil, &JobValidationError{
					Reason: fmt.Sprintf("job %q depends on unknown job %q", cfg.Job.JobID(), dep),
				}
			}
		}
	}

	order := make(map[string]int, len(configs))
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(configs))

	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		switch state[id] {
		case visited:
			return order[id], nil
		case visiting:
			return 0, &JobValidationError{Reason: fmt.Sprintf("dependency cycle detected at job %q", id)}
		}
		state[id] = visiting

		depth := 0
		for _, dep := range byID[id].Job.DependsOn() {
			depDepth, err := visit(dep)
			if err != nil {
				return 0, err
			}
			if depDepth+1 > depth {
				depth = depDepth + 1
			}
		}

		state[id] = visited
		order[id] = depth
		return depth, nil
	}

	for id := range byID {
		if _, err := visit(id); err != nil {
			return nil, err
		}
	}

	plan := &Plan{Jobs: make([]PlannedJob, 0, len(configs))}
	for _, cfg := range configs {
		plan.Jobs = append(plan.Jobs, PlannedJob{
			Job:            cfg.Job,
			ExecutionOrder: order[cfg.Job.JobID()],
			Required:       cfg.RequiredForCompletion,
		})
	}
	return plan, nil
}
