// Package jobs provides the concrete workflow.Job implementations the
// planner wires into every deployment's DAG: fetching source, building or
// detecting a preset, deploying a container or static bundle, registering
// crons, and the synthetic completion marker.
package jobs

// Well-known job IDs. The planner uses these as DependsOn references; job
// implementations use them as their own JobID.
const (
	IDDownload     = "download"
	IDDetectBuild  = "detect_preset_and_build"
	IDDeployImage  = "deploy_container"
	IDDeployStatic = "deploy_static_bundle"
	IDConfigCrons  = "configure_crons"
	IDMarkComplete = "mark_deployment_complete"
)

// Output keys set via workflow.Context.SetOutput by one job and read by a
// later one via workflow.GetOutput.
const (
	outRepoDir      = "repo_dir"
	outCommitSHA    = "commit_sha"
	outImageRef     = "image_ref"
	outStaticDir    = "static_artifact_dir"
	outContainerID  = "container_name"
	outHostPort     = "host_port"
	outDeployedDir  = "deployed_dir"
	outFileCount    = "file_count"
	outTotalBytes   = "total_size_bytes"
)
