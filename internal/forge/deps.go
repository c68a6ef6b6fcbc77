package forge

import (
	"fmt"
	"path/filepath"
	"time"
)

// cacheFileName is the toolchain's persisted configuration cache inside a
// build tree. Its presence is what distinguishes PartiallyBuilt from Absent.
const cacheFileName = "CMakeCache.txt"

// installPrefixKey is the cache entry recording where the configure step was
// told to install. It must point at the dependency's staging path; anything
// else means the build tree was configured for a different layout.
const installPrefixKey = "CMAKE_INSTALL_PREFIX"

// Dependency is one buildable unit. It is owned by the orchestrator for the
// duration of one run; only its filesystem footprint under the prefix
// persists between runs.
type Dependency struct {
	Name    string
	Version string

	// RepoURL plus Ref identify a git source. ArchiveURL, when set, is
	// preferred and names a release tarball (Blake3 optionally pins it).
	RepoURL    string
	Ref        string
	ArchiveURL string
	Blake3     string

	// Desired is the configuration signature a usable install must satisfy.
	Desired Signature

	// Marker is a path relative to the install root whose presence
	// identifies a complete install (the library's own metadata directory).
	Marker string

	// EnvVar is the variable name emitted in the post-run environment hints.
	EnvVar string
}

// Per-dependency filesystem footprint under the prefix. These five paths are
// the only state the orchestrator persists between runs.

func (d *Dependency) SourceDir(prefix string) string {
	return filepath.Join(prefix, d.Name+"-src")
}

func (d *Dependency) BuildDir(prefix string) string {
	return filepath.Join(prefix, d.Name+"-build")
}

func (d *Dependency) InstallDir(prefix string) string {
	return filepath.Join(prefix, d.Name)
}

func (d *Dependency) StagingDir(prefix string) string {
	return filepath.Join(prefix, d.Name+".new")
}

func (d *Dependency) BackupDir(prefix string, t time.Time) string {
	return filepath.Join(prefix, fmt.Sprintf("%s.bak.%s", d.Name, t.Format("20060102-150405")))
}

// DefaultCatalog returns the built-in dependencies of enGrid: VTK compiled
// with Qt GUI integration and Python wrapping, and the netgen meshing kernel.
// CLI/config overrides are applied on top by the caller.
func DefaultCatalog() []*Dependency {
	return []*Dependency{
		{
			Name:    "vtk",
			Version: "9.3.1",
			RepoURL: "https://gitlab.kitware.com/vtk/vtk.git",
			Ref:     "v9.3.1",
			Desired: mustSignature(
				"CMAKE_BUILD_TYPE=Release",
				"BUILD_SHARED_LIBS=ON",
				"VTK_GROUP_ENABLE_Qt=YES",
				"VTK_WRAP_PYTHON=ON",
			),
			Marker: filepath.Join("lib", "cmake"),
			EnvVar: "VTK_DIR",
		},
		{
			Name:    "netgen",
			Version: "6.2.2404",
			RepoURL: "https://github.com/NGSolve/netgen.git",
			Ref:     "v6.2.2404",
			Desired: mustSignature(
				"CMAKE_BUILD_TYPE=Release",
				"USE_GUI=OFF",
				"USE_PYTHON=ON",
			),
			Marker: filepath.Join("lib", "cmake"),
			EnvVar: "NETGEN_DIR",
		},
	}
}

// CatalogByName indexes a catalog for override application.
func CatalogByName(deps []*Dependency) map[string]*Dependency {
	m := make(map[string]*Dependency, len(deps))
	for _, d := range deps {
		m[d.Name] = d
	}
	return m
}
