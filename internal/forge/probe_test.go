package forge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProbe_NothingOnDisk(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")

	pr := ProbeDependency(dep, prefix)
	if pr.State != StateAbsent {
		t.Fatalf("state = %s, want absent", pr.State)
	}
	if pr.SourcePresent {
		t.Error("no source directory exists")
	}
}

func TestProbe_SourceOnly(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	mkdirAll(t, dep.SourceDir(prefix))

	pr := ProbeDependency(dep, prefix)
	if pr.State != StateAbsent {
		t.Fatalf("state = %s, want absent", pr.State)
	}
	if !pr.SourcePresent {
		t.Error("source directory should be detected")
	}
}

func TestProbe_PartiallyBuilt(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	mkdirAll(t, dep.SourceDir(prefix))
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=ON")

	pr := ProbeDependency(dep, prefix)
	if pr.State != StatePartiallyBuilt {
		t.Fatalf("state = %s, want partially-built", pr.State)
	}
	if !pr.CacheOK {
		t.Errorf("cache should be compatible: %s", pr.Reason)
	}
}

func TestProbe_DriftedCacheIsIncompatible(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	// Cache lacks ENABLE_GUI entirely.
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release")

	pr := ProbeDependency(dep, prefix)
	if pr.State != StatePartiallyBuilt {
		t.Fatalf("state = %s, want partially-built", pr.State)
	}
	if pr.CacheOK {
		t.Error("a cache missing a desired flag must not count as compatible")
	}
}

func TestProbe_CacheWithForeignInstallPrefix(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=ON")

	// Rewrite the recorded install prefix to somewhere else.
	cachePath := filepath.Join(dep.BuildDir(prefix), cacheFileName)
	fixed := []byte("CMAKE_INSTALL_PREFIX:PATH=/somewhere/else\nCMAKE_BUILD_TYPE:STRING=Release\nENABLE_GUI:STRING=ON\n")
	if err := os.WriteFile(cachePath, fixed, 0o644); err != nil {
		t.Fatal(err)
	}

	pr := ProbeDependency(dep, prefix)
	if pr.CacheOK {
		t.Error("a cache configured for a different install prefix must be incompatible")
	}
}

func TestProbe_MatchingInstall(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=ON")
	writeInstall(t, dep, prefix, "v1")

	pr := ProbeDependency(dep, prefix)
	if pr.State != StateMatching {
		t.Fatalf("state = %s (%s), want matching", pr.State, pr.Reason)
	}
}

func TestProbe_InstallWithoutMarkerIsStale(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=ON")
	mkdirAll(t, dep.InstallDir(prefix)) // empty, no marker

	pr := ProbeDependency(dep, prefix)
	if pr.State != StateStale {
		t.Fatalf("state = %s, want stale", pr.State)
	}
}

func TestProbe_InstallWithIncompatibleCacheIsStale(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=OFF")
	writeInstall(t, dep, prefix, "v1")

	pr := ProbeDependency(dep, prefix)
	if pr.State != StateStale {
		t.Fatalf("state = %s, want stale", pr.State)
	}
}

func TestProbe_InstallWithoutCacheIsStale(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	writeInstall(t, dep, prefix, "v1")

	// No build cache: the signature cannot be verified, which is treated
	// as incompatible rather than trusted.
	pr := ProbeDependency(dep, prefix)
	if pr.State != StateStale {
		t.Fatalf("state = %s, want stale", pr.State)
	}
}
