package forge

import (
	"os"
	"path/filepath"
)

// InstallState classifies a dependency's on-disk footprint at probe time.
// It is derived fresh each run, never stored.
type InstallState int

const (
	// StateAbsent: no install directory and no configured build tree.
	StateAbsent InstallState = iota
	// StateMatching: install present and its recorded signature satisfies
	// the desired one.
	StateMatching
	// StateStale: install present but the signature mismatches or cannot
	// be verified. Unknown is treated as incompatible on purpose; a
	// wasted rebuild is cheaper than a wrong install.
	StateStale
	// StatePartiallyBuilt: a configured build tree exists but no install.
	StatePartiallyBuilt
)

func (s InstallState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateMatching:
		return "matching"
	case StateStale:
		return "stale"
	case StatePartiallyBuilt:
		return "partially-built"
	}
	return "unknown"
}

// ProbeResult is what the planner consumes: the classified state, whether the
// build tree's recorded configuration satisfies the desired one, whether a
// source tree is on disk, and a human-readable reason for logging.
type ProbeResult struct {
	State         InstallState
	CacheOK       bool
	SourcePresent bool
	Actual        Signature
	Reason        string
}

// ProbeDependency inspects dep's footprint under prefix. Read-only; it never
// creates or modifies anything.
func ProbeDependency(dep *Dependency, prefix string) ProbeResult {
	res := ProbeResult{SourcePresent: dirExists(dep.SourceDir(prefix))}

	cachePath := filepath.Join(dep.BuildDir(prefix), cacheFileName)
	haveCache := false
	if fileExists(cachePath) {
		haveCache = true
		actual, err := ReadCacheSignature(cachePath)
		if err != nil {
			res.Reason = "build cache unreadable: " + err.Error()
		} else {
			res.Actual = actual
			res.CacheOK = dep.Desired.CompatibleWith(actual)
			if res.CacheOK {
				// A cache configured for a different install layout is as
				// stale as one with the wrong flags.
				if rec, ok := actual.Get(installPrefixKey); !ok || !samePath(rec, dep.StagingDir(prefix)) {
					res.CacheOK = false
					res.Reason = "build cache targets a different install prefix"
				}
			} else {
				res.Reason = "build cache signature does not satisfy desired flags"
			}
		}
	} else {
		res.Reason = "no build cache"
	}

	installDir := dep.InstallDir(prefix)
	switch {
	case dirExists(installDir):
		if !dirExists(filepath.Join(installDir, dep.Marker)) {
			res.State = StateStale
			res.Reason = "install present but marker " + dep.Marker + " is missing"
		} else if res.CacheOK {
			res.State = StateMatching
			res.Reason = "install satisfies desired configuration"
		} else {
			res.State = StateStale
		}
	case haveCache:
		res.State = StatePartiallyBuilt
		if res.CacheOK {
			res.Reason = "configured build tree present, no install"
		}
	default:
		res.State = StateAbsent
		if res.SourcePresent {
			res.Reason = "source present, nothing built"
		} else {
			res.Reason = "nothing on disk"
		}
	}
	return res
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
