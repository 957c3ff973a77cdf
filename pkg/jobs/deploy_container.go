package jobs

import (
	"context"
	"fmt"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
	"github.com/gotempsh/temps/pkg/workflow"
)

// defaultContainerPort is the fallback when no image EXPOSE directive,
// environment override, or project default resolves a port.
const defaultContainerPort = 3000

// DeployContainerJob starts the built (or externally supplied) image
// against the target environment, resolving its container port through
// the priority chain: image EXPOSE → environment override → project
// default → 3000.
type DeployContainerJob struct {
	Store  storage.Store
	Engine ContainerEngine
	// Deps is set by the builder: {download, detect_preset_and_build} for
	// a git source, empty for a deployment that already names an image.
	Deps []string
}

// JobID implements workflow.Job.
func (j *DeployContainerJob) JobID() string { return IDDeployImage }

// Name implements workflow.Job.
func (j *DeployContainerJob) Name() string { return "Deploy container" }

// DependsOn implements workflow.Job.
func (j *DeployContainerJob) DependsOn() []string { return j.Deps }

// Execute implements workflow.Job.
func (j *DeployContainerJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_container: load deployment: %w", err)
	}
	env, err := j.Store.GetEnvironment(wc.EnvironmentID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_container: load environment: %w", err)
	}
	proj, err := j.Store.GetProject(wc.ProjectID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_container: load project: %w", err)
	}

	imageRef := dep.Metadata["image_ref"]
	if imageRef == "" {
		ref, ok, err := workflow.GetOutput[string](wc, IDDetectBuild, outImageRef)
		if err != nil {
			return workflow.Failure(err.Error()), err
		}
		if !ok {
			return workflow.Failure("no image reference available"), fmt.Errorf("jobs: deploy_container: no image_ref")
		}
		imageRef = ref
	}

	port := j.resolvePort(ctx, imageRef, env, proj)

	name := fmt.Sprintf("temps-%s-%s", env.Slug, wc.DeploymentID)
	_ = wc.Log.WriteLog(fmt.Sprintf("starting %s from %s on container port %d", name, imageRef, port))

	containerName, hostPort, err := j.Engine.Run(ctx, name, imageRef, port, dep.Metadata)
	if err != nil {
		_ = wc.Log.WriteLog("error: " + err.Error())
		return workflow.Failure(err.Error()), err
	}

	if err := wc.SetOutput(j.JobID(), outContainerID, containerName); err != nil {
		return workflow.Failure(err.Error()), err
	}
	if err := wc.SetOutput(j.JobID(), outHostPort, hostPort); err != nil {
		return workflow.Failure(err.Error()), err
	}

	env.Upstreams = []types.Upstream{{Host: "127.0.0.1", Port: hostPort, Weight: 1}}
	if err := j.Store.UpdateEnvironment(env); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_container: update environment upstreams: %w", err)
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("success: %s listening on host port %d", containerName, hostPort))
	return workflow.Success(fmt.Sprintf("deployed %s on port %d", containerName, hostPort)), nil
}

// resolvePort implements the image EXPOSE → environment override →
// project fallback → default 3000 chain.
func (j *DeployContainerJob) resolvePort(ctx context.Context, imageRef string, env *types.Environment, proj *types.Project) int {
	if port, err := j.Engine.ExposedPort(ctx, imageRef); err == nil && port > 0 {
		return port
	}
	if env.PortOverride > 0 {
		return env.PortOverride
	}
	if proj.DefaultPort > 0 {
		return proj.DefaultPort
	}
	return defaultContainerPort
}
