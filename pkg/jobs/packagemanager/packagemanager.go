// Package packagemanager detects which Node.js package manager a downloaded
// repository expects to be built with, and the Node major version its base
// image should run, following the priority order real preset detectors use:
// an explicit packageManager field beats lockfile sniffing beats engines.
package packagemanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind identifies a Node.js package manager.
type Kind string

const (
	NPM  Kind = "npm"
	Yarn Kind = "yarn"
	PNPM Kind = "pnpm"
	Bun  Kind = "bun"
)

// Detection is the resolved package manager plus, for Yarn, which major
// generation to invoke (1.x "classic" vs 4.x "berry" have incompatible
// CLIs).
type Detection struct {
	Manager    Kind
	YarnMajor  int // only meaningful when Manager == Yarn; 0 means unresolved/irrelevant
	NodeMajor  int // clamped to the supported LTS set
	SourceHint string
}

var supportedNodeLTS = []int{18, 20, 22}

const defaultNodeMajor = 22

type packageJSON struct {
	PackageManager string            `json:"packageManager"`
	Engines        map[string]string `json:"engines"`
}

// Detect walks repoDir applying the priority order: packageManager field →
// lock files (pnpm-lock.yaml, bun.lockb, yarn.lock, package-lock.json) →
// .yarnrc.yml → engines field → npm default. It also resolves the Node
// base image major version from engines.node, clamped to {18, 20, 22}.
func Detect(repoDir string) (Detection, error) {
	pkg, err := readPackageJSON(repoDir)
	if err != nil {
		return Detection{}, err
	}

	nodeMajor := resolveNodeMajor(pkg.Engines["node"])

	if pkg.PackageManager != "" {
		kind, major, err := parsePackageManagerField(pkg.PackageManager)
		if err == nil {
			return Detection{Manager: kind, YarnMajor: major, NodeMajor: nodeMajor, SourceHint: "packageManager field"}, nil
		}
	}

	if fileExists(filepath.Join(repoDir, "pnpm-lock.yaml")) {
		return Detection{Manager: PNPM, NodeMajor: nodeMajor, SourceHint: "pnpm-lock.yaml"}, nil
	}
	if fileExists(filepath.Join(repoDir, "bun.lockb")) {
		return Detection{Manager: Bun, NodeMajor: nodeMajor, SourceHint: "bun.lockb"}, nil
	}
	if fileExists(filepath.Join(repoDir, "yarn.lock")) {
		major := yarnMajorFromYarnrc(repoDir)
		return Detection{Manager: Yarn, YarnMajor: major, NodeMajor: nodeMajor, SourceHint: "yarn.lock"}, nil
	}
	if fileExists(filepath.Join(repoDir, "package-lock.json")) {
		return Detection{Manager: NPM, NodeMajor: nodeMajor, SourceHint: "package-lock.json"}, nil
	}

	if fileExists(filepath.Join(repoDir, ".yarnrc.yml")) {
		major := yarnMajorFromYarnrc(repoDir)
		return Detection{Manager: Yarn, YarnMajor: major, NodeMajor: nodeMajor, SourceHint: ".yarnrc.yml"}, nil
	}

	if _, ok := pkg.Engines["node"]; ok {
		return Detection{Manager: NPM, NodeMajor: nodeMajor, SourceHint: "engines.node"}, nil
	}

	return Detection{Manager: NPM, NodeMajor: nodeMajor, SourceHint: "default"}, nil
}

func readPackageJSON(repoDir string) (packageJSON, error) {
	path := filepath.Join(repoDir, "package.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return packageJSON{}, nil
	}
	if err != nil {
		return packageJSON{}, fmt.Errorf("packagemanager: read package.json: %w", err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return packageJSON{}, fmt.Errorf("packagemanager: parse package.json: %w", err)
	}
	return pkg, nil
}

// parsePackageManagerField parses the corepack-style "name@version" field,
// e.g. "yarn@1.22.19" or "yarn@4.1.0" or "pnpm@8.6.0".
func parsePackageManagerField(field string) (Kind, int, error) {
	name, version, ok := strings.Cut(field, "@")
	if !ok {
		return "", 0, fmt.Errorf("packagemanager: malformed packageManager field %q", field)
	}

	var kind Kind
	switch strings.ToLower(name) {
	case "npm":
		kind = NPM
	case "yarn":
		kind = Yarn
	case "pnpm":
		kind = PNPM
	case "bun":
		kind = Bun
	default:
		return "", 0, fmt.Errorf("packagemanager: unknown package manager %q", name)
	}

	major := 0
	if kind == Yarn {
		// "1.x"/"4.x" placeholders resolve to their literal major below;
		// concrete versions like "1.22.19" or "4.1.0" take the leading
		// numeric component.
		versionMajor := strings.SplitN(version, ".", 2)[0]
		if versionMajor == "1" || version == "1.x" {
			major = 1
		} else if n, err := strconv.Atoi(versionMajor); err == nil {
			major = n
		} else {
			major = 1
		}
	}

	return kind, major, nil
}

// yarnMajorFromYarnrc inspects .yarnrc.yml for a yarnPath referencing a
// berry release, defaulting to classic (major 1) when absent — Yarn
// Classic never writes a .yarnrc.yml with a yarnPath key.
func yarnMajorFromYarnrc(repoDir string) int {
	data, err := os.ReadFile(filepath.Join(repoDir, ".yarnrc.yml"))
	if err != nil {
		return 1
	}
	if strings.Contains(string(data), "yarnPath:") {
		return 4
	}
	return 1
}

func resolveNodeMajor(constraint string) int {
	if constraint == "" {
		return defaultNodeMajor
	}
	digits := strings.TrimLeft(constraint, "^~>=v ")
	end := strings.IndexAny(digits, ".x ")
	if end > 0 {
		digits = digits[:end]
	}
	major, err := strconv.Atoi(digits)
	if err != nil {
		return defaultNodeMajor
	}
	for _, lts := range supportedNodeLTS {
		if lts == major {
			return major
		}
	}
	return defaultNodeMajor
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NodeBaseImage returns the conventional Docker base image tag for the
// detected Node major version.
func NodeBaseImage(nodeMajor int) string {
	return fmt.Sprintf("node:%d-slim", nodeMajor)
}
