package jobs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/workflow"
)

// DownloadJob clones a project's git repository at the deployment's
// requested ref (or the project's main branch) into a per-deployment work
// directory, shelling out to the system git binary the way the rest of
// this codebase shells out to external tools rather than linking a git
// implementation.
type DownloadJob struct {
	Store   storage.Store
	DataDir string
}

// JobID implements workflow.Job.
func (j *DownloadJob) JobID() string { return IDDownload }

// Name implements workflow.Job.
func (j *DownloadJob) Name() string { return "Download repository" }

// DependsOn implements workflow.Job.
func (j *DownloadJob) DependsOn() []string { return nil }

// ValidatePrerequisites implements workflow.PrerequisiteValidator.
func (j *DownloadJob) ValidatePrerequisites(wc *workflow.Context) error {
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return fmt.Errorf("jobs: download: load deployment: %w", err)
	}
	if dep.SourceType != "" && dep.SourceType != "git" {
		return nil // download is a no-op for image/static-bundle sources; ShouldSkip handles it
	}
	proj, err := j.Store.GetProject(wc.ProjectID)
	if err != nil {
		return fmt.Errorf("jobs: download: load project: %w", err)
	}
	if proj.GitURL == "" {
		return fmt.Errorf("jobs: download: project %q has no git_url configured", proj.Slug)
	}
	return nil
}

// ShouldSkip implements workflow.SkipChecker. Image and static-bundle
// deployments never clone a repository.
func (j *DownloadJob) ShouldSkip(wc *workflow.Context) (bool, string) {
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return false, ""
	}
	if dep.SourceType == "docker_image" || dep.SourceType == "static_bundle" {
		return true, fmt.Sprintf("deployment source is %s, nothing to clone", dep.SourceType)
	}
	return false, ""
}

// Execute implements workflow.Job.
func (j *DownloadJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	proj, err := j.Store.GetProject(wc.ProjectID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: download: load project: %w", err)
	}
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: download: load deployment: %w", err)
	}

	ref := dep.Metadata["ref"]
	if ref == "" {
		ref = proj.MainBranch
	}
	if ref == "" {
		ref = "main"
	}

	repoDir := filepath.Join(j.DataDir, "repos", wc.DeploymentID)
	if err := os.RemoveAll(repoDir); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: download: clear work dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: download: create work dir: %w", err)
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("cloning %s (ref %s)", proj.GitURL, ref))

	cloneCmd := exec.CommandContext(ctx, "git", "clone", "--branch", ref, "--depth", "1", proj.GitURL, repoDir)
	var stderr bytes.Buffer
	cloneCmd.Stderr = &stderr
	if err := cloneCmd.Run(); err != nil {
		msg := fmt.Sprintf("git clone failed: %v: %s", err, strings.TrimSpace(stderr.String()))
		_ = wc.Log.WriteLog("error: " + msg)
		return workflow.Failure(msg), fmt.Errorf("jobs: download: %s", msg)
	}

	shaCmd := exec.CommandContext(ctx, "git", "-C", repoDir, "rev-parse", "HEAD")
	var out bytes.Buffer
	shaCmd.Stdout = &out
	if err := shaCmd.Run(); err != nil {
		msg := fmt.Sprintf("git rev-parse failed: %v", err)
		return workflow.Failure(msg), fmt.Errorf("jobs: download: %s", msg)
	}
	sha := strings.TrimSpace(out.String())

	wc.SetArtifact(j.JobID(), outRepoDir, repoDir)
	if err := wc.SetOutput(j.JobID(), outRepoDir, repoDir); err != nil {
		return workflow.Failure(err.Error()), err
	}
	if err := wc.SetOutput(j.JobID(), outCommitSHA, sha); err != nil {
		return workflow.Failure(err.Error()), err
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("success: resolved commit %s", sha))
	return workflow.Success(fmt.Sprintf("cloned %s @ %s", proj.GitURL, sha)), nil
}

// Cleanup implements workflow.Cleaner.
func (j *DownloadJob) Cleanup(wc *workflow.Context) {
	if dir, ok := wc.GetArtifact(j.JobID(), outRepoDir); ok {
		_ = os.RemoveAll(dir)
	}
}
