package jobs

import (
	"context"

	"github.com/gotempsh/temps/pkg/workflow"
)

// MarkDeploymentCompleteJob is the synthetic terminal node every
// deployment's required chain ends on. Its own execution does nothing
// beyond returning success; it exists purely so the tracker's
// "every required job succeeded" check has a final node to wait on before
// flipping the deployment to completed and advancing the environment's
// current_deployment_id. Optional jobs (cron configuration, screenshots)
// may remain pending after this runs and never block it.
type MarkDeploymentCompleteJob struct {
	dependsOn []string
}

// NewMarkDeploymentCompleteJob returns the completion job depending on
// every required job the planner placed ahead of it.
func NewMarkDeploymentCompleteJob(dependsOn []string) *MarkDeploymentCompleteJob {
	return &MarkDeploymentCompleteJob{dependsOn: dependsOn}
}

// JobID implements workflow.Job.
func (j *MarkDeploymentCompleteJob) JobID() string { return IDMarkComplete }

// Name implements workflow.Job.
func (j *MarkDeploymentCompleteJob) Name() string { return "Mark deployment complete" }

// DependsOn implements workflow.Job.
func (j *MarkDeploymentCompleteJob) DependsOn() []string { return j.dependsOn }

// Execute implements workflow.Job.
func (j *MarkDeploymentCompleteJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	_ = wc.Log.WriteLog("success: deployment complete")
	return workflow.Success("deployment complete"), nil
}
