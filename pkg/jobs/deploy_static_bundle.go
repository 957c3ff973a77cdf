package jobs

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/workflow"
)

// bundleContentType is the archive format a static bundle was packaged
// with.
type bundleContentType int

const (
	contentTypeGzip bundleContentType = iota
	contentTypeZip
)

// DeployStaticBundleJob extracts a previously uploaded static bundle
// (tar.gz or zip) into the environment's serving directory, refusing any
// entry whose resolved path would escape that directory.
type DeployStaticBundleJob struct {
	Store   storage.Store
	DataDir string
	// Deps is set by the builder. The builder plans this job only for
	// directly uploaded bundles, so it is empty.
	Deps []string
}

// JobID implements workflow.Job.
func (j *DeployStaticBundleJob) JobID() string { return IDDeployStatic }

// Name implements workflow.Job.
func (j *DeployStaticBundleJob) Name() string { return "Deploy static bundle" }

// DependsOn implements workflow.Job.
func (j *DeployStaticBundleJob) DependsOn() []string { return j.Deps }

// Execute implements workflow.Job.
func (j *DeployStaticBundleJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	dep, err := j.Store.GetDeployment(wc.DeploymentID)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_static_bundle: load deployment: %w", err)
	}

	bundlePath := dep.Metadata["bundle_path"]
	if bundlePath == "" {
		return workflow.Failure("deployment has no bundle_path"), fmt.Errorf("jobs: deploy_static_bundle: no bundle_path")
	}

	srcPath := filepath.Join(j.DataDir, bundlePath)
	contentType := detectContentType(bundlePath, srcPath)

	targetDir := filepath.Join(j.DataDir, "static", wc.EnvironmentID)
	if err := os.RemoveAll(targetDir); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_static_bundle: clear target dir: %w", err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_static_bundle: create target dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return workflow.Failure(err.Error()), fmt.Errorf("jobs: deploy_static_bundle: open bundle: %w", err)
	}
	defer src.Close()

	var fileCount int
	var totalBytes int64

	switch contentType {
	case contentTypeZip:
		fileCount, totalBytes, err = extractZip(srcPath, targetDir)
	default:
		fileCount, totalBytes, err = extractTarGz(src, targetDir)
	}
	if err != nil {
		_ = wc.Log.WriteLog("error: " + err.Error())
		return workflow.Failure(err.Error()), err
	}

	if err := wc.SetOutput(j.JobID(), outDeployedDir, targetDir); err != nil {
		return workflow.Failure(err.Error()), err
	}
	if err := wc.SetOutput(j.JobID(), outFileCount, fileCount); err != nil {
		return workflow.Failure(err.Error()), err
	}
	if err := wc.SetOutput(j.JobID(), outTotalBytes, totalBytes); err != nil {
		return workflow.Failure(err.Error()), err
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("success: extracted %d files (%d bytes) to %s", fileCount, totalBytes, targetDir))
	return workflow.Success(fmt.Sprintf("deployed static bundle to %s", targetDir)), nil
}

// detectContentType prioritizes the file extension over any declared
// header, since a client can mislabel content-type but rarely renames a
// file it didn't produce itself.
func detectContentType(name, path string) bundleContentType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return contentTypeGzip
	case strings.HasSuffix(lower, ".zip"):
		return contentTypeZip
	}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		header := make([]byte, 4)
		if n, _ := f.Read(header); n == 4 {
			if header[0] == 0x50 && header[1] == 0x4b {
				return contentTypeZip
			}
		}
	}
	return contentTypeGzip
}

// safeJoin resolves entryName under targetDir and refuses any path that
// would escape it after cleaning.
func safeJoin(targetDir, entryName string) (string, error) {
	dest := filepath.Join(targetDir, entryName)
	cleanTarget := filepath.Clean(targetDir) + string(os.PathSeparator)
	if dest != filepath.Clean(targetDir) && !strings.HasPrefix(filepath.Clean(dest)+string(os.PathSeparator), cleanTarget) {
		return "", fmt.Errorf("Path traversal attempt detected: %q", entryName)
	}
	return dest, nil
}

func extractTarGz(r io.Reader, targetDir string) (int, int64, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var fileCount int
	var totalBytes int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: read tar entry: %w", err)
		}

		dest, err := safeJoin(targetDir, hdr.Name)
		if err != nil {
			return 0, 0, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: create dir %q: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: create parent dir for %q: %w", hdr.Name, err)
			}
			n, err := writeFile(dest, tr, os.FileMode(hdr.Mode))
			if err != nil {
				return 0, 0, err
			}
			fileCount++
			totalBytes += n
		}
	}

	return fileCount, totalBytes, nil
}

func extractZip(srcPath, targetDir string) (int, int64, error) {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: open zip: %w", err)
	}
	defer zr.Close()

	var fileCount int
	var totalBytes int64

	for _, entry := range zr.File {
		dest, err := safeJoin(targetDir, entry.Name)
		if err != nil {
			return 0, 0, fmt.Errorf("%w in zip entry %s", err, entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: create dir %q: %w", entry.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: create parent dir for %q: %w", entry.Name, err)
		}

		rc, err := entry.Open()
		if err != nil {
			return 0, 0, fmt.Errorf("jobs: deploy_static_bundle: open zip entry %q: %w", entry.Name, err)
		}
		n, err := writeFile(dest, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return 0, 0, err
		}
		fileCount++
		totalBytes += n
	}

	return fileCount, totalBytes, nil
}

func writeFile(dest string, r io.Reader, mode os.FileMode) (int64, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("jobs: deploy_static_bundle: create %q: %w", dest, err)
	}
	defer out.Close()
	n, err := io.Copy(out, r)
	if err != nil {
		return n, fmt.Errorf("jobs: deploy_static_bundle: write %q: %w", dest, err)
	}
	return n, nil
}
