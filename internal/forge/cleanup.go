package forge

import (
	"fmt"
	"os"
	"path/filepath"
)

// newScratchDir creates a temporary working directory under base and returns
// it with a cleanup func. Callers defer the cleanup so the directory is
// removed on every exit path; its failure is logged, never fatal.
func newScratchDir(base, pattern string) (string, func(), error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(base, "."+pattern+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			warnf("failed to remove scratch dir %s: %v", dir, err)
		}
	}
	return dir, cleanup, nil
}

// discardBuildConfig removes the build tree's configuration metadata so the
// next configure regenerates it from scratch. Compiled objects stay; the
// toolchain decides what it can still reuse. The source tree is never
// touched here.
func discardBuildConfig(buildDir string) error {
	for _, rel := range []string{cacheFileName, "CMakeFiles"} {
		p := filepath.Join(buildDir, rel)
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to discard %s: %w", p, err)
		}
	}
	return nil
}

// CleanInstalls implements clean mode: it removes each dependency's final
// install directory and any staging leftover, forcing the next run to
// rebuild from cached build state. Source trees, build trees and backups are
// deliberately left alone.
func CleanInstalls(cfg *Config, deps []*Dependency) error {
	for _, dep := range deps {
		for _, dir := range []string{dep.InstallDir(cfg.Prefix), dep.StagingDir(cfg.Prefix)} {
			if !dirExists(dir) {
				continue
			}
			stepf("Removing %s", dir)
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to remove %s: %w", dir, err)
			}
		}
	}
	return nil
}
