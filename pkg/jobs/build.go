package jobs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gotempsh/temps/pkg/jobs/packagemanager"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/workflow"
)

// buildCommands maps a detected Node package manager to its install and
// build invocations.
var buildCommands = map[packagemanager.Kind][2][]string{
	packagemanager.NPM:  {{"npm", "ci"}, {"npm", "run", "build"}},
	packagemanager.PNPM: {{"pnpm", "install", "--frozen-lockfile"}, {"pnpm", "build"}},
	packagemanager.Bun:  {{"bun", "install"}, {"bun", "run", "build"}},
}

// yarnCommands differs between Yarn Classic and Yarn Berry.
func yarnCommands(major int) [2][]string {
	if major >= 2 {
		return [2][]string{{"yarn", "install", "--immutable"}, {"yarn", "build"}}
	}
	return [2][]string{{"yarn", "install", "--frozen-lockfile"}, {"yarn", "build"}}
}

// DetectAndBuildJob resolves a project's build preset and produces either a
// container image (docker/node presets) or a static artifact directory
// (static preset), following the priority order: explicit deployment
// preset → project preset field → repo-content detector.
type DetectAndBuildJob struct {
	Store   storage.Store
	DataDir string
	Engine  ContainerEngine
}

// JobID implements workflow.Job.
func (j *DetectAndBuildJob) JobID() string { return IDDetectBuild }

// Name implements workflow.Job.
func (j *DetectAndBuildJob) Name() string { return "Detect preset & build" }

// DependsOn implements workflow.Job.
func (j *DetectAndBuildJob) DependsOn() []string { return []string{IDDownload} }

// ShouldSkip implements workflow.SkipChecker. Prebuilt image and static
// bundle deployments already have their artifact; nothing to build.
func (j *DetectAndBuildJob) ShouldSkip(wc *workflow.Context) (bool, string) {
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return false, ""
	}
	if dep.SourceType == "docker_image" || dep.SourceType == "static_bundle" {
		return true, fmt.Sprintf("deployment source is %s, already has an artifact", dep.SourceType)
	}
	return false, ""
}

// Execute implements workflow.Job.
func (j *DetectAndBuildJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	proj, err := j.Store.GetProject(wc.ProjectID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: build: load project: %w", err)
	}
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: build: load deployment: %w", err)
	}

	repoDir, ok, err := workflow.GetOutput[string](wc, IDDownload, outRepoDir)
	if err != nil || !ok {
		return workflow.Failure("missing repo_dir output from download job"), fmt.Errorf("jobs: build: no repo_dir")
	}

	preset := dep.Metadata["preset"]
	if preset == "" {
		preset = proj.Preset
	}
	if preset == "" {
		preset = detectPreset(repoDir)
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("building with preset %q", preset))

	switch preset {
	case "docker":
		return j.buildDocker(ctx, wc, repoDir)
	case "static":
		return j.buildStatic(ctx, wc, repoDir)
	default: // "node" and anything else detected as a Node app
		return j.buildNode(ctx, wc, repoDir)
	}
}

// detectPreset walks repoDir the way a real preset detector would:
// Dockerfile wins outright, then package.json implies a Node build,
// otherwise treat the repo as a static site.
func detectPreset(repoDir string) string {
	if fileExists(filepath.Join(repoDir, "Dockerfile")) {
		return "docker"
	}
	if fileExists(filepath.Join(repoDir, "package.json")) {
		return "node"
	}
	return "static"
}

func (j *DetectAndBuildJob) buildDocker(ctx context.Context, wc *workflow.Context, repoDir string) (workflow.Result, error) {
	tag := fmt.Sprintf("temps/%s:%s", wc.ProjectID, wc.DeploymentID)
	ref, err := j.Engine.Build(ctx, repoDir, tag, nil)
	if err != nil {
		_ = wc.Log.WriteLog("error: " + err.Error())
		return workflow.Failure(err.Error()), err
	}
	if err := wc.SetOutput(j.JobID(), outImageRef, ref); err != nil {
		return workflow.Failure(err.Error()), err
	}
	_ = wc.Log.WriteLog("success: built " + ref)
	return workflow.Success("built " + ref), nil
}

func (j *DetectAndBuildJob) buildNode(ctx context.Context, wc *workflow.Context, repoDir string) (workflow.Result, error) {
	detection, err := packagemanager.Detect(repoDir)
	if err != nil {
		return workflow.Failure(err.Error()), err
	}
	_ = wc.Log.WriteLog(fmt.Sprintf("detected %s (%s), node %d", detection.Manager, detection.SourceHint, detection.NodeMajor))

	var commands [2][]string
	if detection.Manager == packagemanager.Yarn {
		commands = yarnCommands(detection.YarnMajor)
	} else {
		cmds, ok := buildCommands[detection.Manager]
		if !ok {
			cmds = buildCommands[packagemanager.NPM]
		}
		commands = cmds
	}

	for _, c := range commands {
		cmd := exec.CommandContext(ctx, c[0], c[1:]...)
		cmd.Dir = repoDir
		out, err := cmd.CombinedOutput()
		if err != nil {
			msg := fmt.Sprintf("%s failed: %v: %s", strings.Join(c, " "), err, string(out))
			_ = wc.Log.WriteLog("error: " + msg)
			return workflow.Failure(msg), fmt.Errorf("jobs: build: %s", msg)
		}
	}

	dockerfile := dockerfileForNode(detection.NodeMajor)
	dockerfilePath := filepath.Join(repoDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0o644); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: build: write generated Dockerfile: %w", err)
	}
	wc.SetArtifact(j.JobID(), "generated_dockerfile", dockerfilePath)

	return j.buildDocker(ctx, wc, repoDir)
}

func (j *DetectAndBuildJob) buildStatic(ctx context.Context, wc *workflow.Context, repoDir string) (workflow.Result, error) {
	if err := wc.SetOutput(j.JobID(), outStaticDir, repoDir); err != nil {
		return workflow.Failure(err.Error()), err
	}
	wc.SetArtifact(j.JobID(), outStaticDir, repoDir)
	_ = wc.Log.WriteLog("success: static artifact at " + repoDir)
	return workflow.Success("static artifact ready"), nil
}

func dockerfileForNode(nodeMajor int) string {
	base := packagemanager.NodeBaseImage(nodeMajor)
	return fmt.Sprintf(`FROM %s
WORKDIR /app
COPY . .
EXPOSE 3000
CMD ["npm", "start"]
`, base)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
