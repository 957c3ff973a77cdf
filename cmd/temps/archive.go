package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// archiveDirectory packages dir into a temporary tar.gz file, matching
// the format DeployStaticBundleJob expects on extraction. The caller
// owns removing the returned path.
func archiveDirectory(dir string) (string, error) {
	tmp, err := os.CreateTemp("", "temps-static-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})

	if closeErr := tw.Close(); closeErr != nil && walkErr == nil {
		walkErr = closeErr
	}
	if closeErr := gz.Close(); closeErr != nil && walkErr == nil {
		walkErr = closeErr
	}
	if walkErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("archive %q: %w", dir, walkErr)
	}

	return tmp.Name(), nil
}
