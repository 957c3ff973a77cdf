package jobs

import (
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
	"github.com/gotempsh/temps/pkg/workflow"
)

// Dependencies bundles the collaborators every job in the library needs.
// A single instance is shared across every deployment's job set.
type Dependencies struct {
	Store     storage.Store
	DataDir   string
	Engine    ContainerEngine
	Registrar CronRegistrar
}

// BuildPlan returns the workflow.JobConfig graph for one deployment,
// shaped by its source: a git deployment walks
// download → detect_preset_and_build → deploy_container,
// while an externally supplied image or bundle skips straight to its
// single deploy job. configure_crons is always present but optional, and
// mark_deployment_complete is always present, required, and last.
func BuildPlan(deps Dependencies, sourceType types.SourceType) []workflow.JobConfig {
	engine := deps.Engine
	if engine == nil {
		engine = DockerCLIEngine{}
	}
	registrar := deps.Registrar
	if registrar == nil {
		registrar = NoOpCronRegistrar{}
	}

	var configs []workflow.JobConfig
	var cronDeps []string
	var deployJobID string

	if sourceType == types.SourceGit {
		download := &DownloadJob{Store: deps.Store, DataDir: deps.DataDir}
		build := &DetectAndBuildJob{Store: deps.Store, DataDir: deps.DataDir, Engine: engine}
		configs = append(configs,
			workflow.JobConfig{Job: download, RequiredForCompletion: true},
			workflow.JobConfig{Job: build, RequiredForCompletion: true},
		)
		cronDeps = []string{IDDownload}
	}

	if sourceType == types.SourceStaticBundle {
		deployStatic := &DeployStaticBundleJob{Store: deps.Store, DataDir: deps.DataDir, Deps: buildDeps(sourceType)}
		configs = append(configs, workflow.JobConfig{Job: deployStatic, RequiredForCompletion: true})
		deployJobID = IDDeployStatic
	} else {
		deployContainer := &DeployContainerJob{Store: deps.Store, Engine: engine, Deps: buildDeps(sourceType)}
		configs = append(configs, workflow.JobConfig{Job: deployContainer, RequiredForCompletion: true})
		deployJobID = IDDeployImage
	}
	cronDeps = append(cronDeps, deployJobID)

	configureCrons := &ConfigureCronsJob{Store: deps.Store, Registrar: registrar, Deps: cronDeps}
	configs = append(configs, workflow.JobConfig{Job: configureCrons, RequiredForCompletion: false})

	markComplete := NewMarkDeploymentCompleteJob([]string{deployJobID})
	configs = append(configs, workflow.JobConfig{Job: markComplete, RequiredForCompletion: true})

	return configs
}

// buildDeps returns the jobs a deploy job must wait on: the build step for
// a git source, nothing for a deployment that already names its artifact.
func buildDeps(sourceType types.SourceType) []string {
	if sourceType == types.SourceGit {
		return []string{IDDownload, IDDetectBuild}
	}
	return nil
}
