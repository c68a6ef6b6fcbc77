package forge

// Action is what the planner decides for one dependency.
type Action int

const (
	// ActionSkip: the existing install already satisfies the desired
	// configuration; do nothing.
	ActionSkip Action = iota
	// ActionReuseBuildDir: the build tree is configured correctly; run
	// compile and install only.
	ActionReuseBuildDir
	// ActionReconfigure: discard the build tree's configuration metadata
	// (never the source tree) and run configure, compile, install.
	ActionReconfigure
	// ActionFreshClone: fetch the source first, then reconfigure.
	ActionFreshClone
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionReuseBuildDir:
		return "reuse-build-dir"
	case ActionReconfigure:
		return "reconfigure"
	case ActionFreshClone:
		return "fresh-clone"
	}
	return "unknown"
}

// Plan maps a probe result to an action. Pure; it never touches the
// filesystem beyond what the probe already read.
//
//	matching   + cache ok  -> skip
//	matching   + cache bad -> rebuild (treated as stale)
//	stale                  -> rebuild
//	part-built + cache ok  -> reuse build dir (fresh clone without source)
//	part-built + cache bad -> rebuild
//	absent                 -> rebuild
//
// where rebuild is reconfigure when a source tree is on disk and fresh
// clone when it is not.
func Plan(pr ProbeResult) Action {
	switch pr.State {
	case StateMatching:
		if pr.CacheOK {
			return ActionSkip
		}
		return rebuildAction(pr)
	case StateStale:
		return rebuildAction(pr)
	case StatePartiallyBuilt:
		if pr.CacheOK && pr.SourcePresent {
			return ActionReuseBuildDir
		}
		return rebuildAction(pr)
	default: // StateAbsent
		return rebuildAction(pr)
	}
}

// rebuildAction picks how a rebuild starts. Reconfiguring without a source
// tree would hand the toolchain a nonexistent source directory, so a missing
// source always means fetching it first.
func rebuildAction(pr ProbeResult) Action {
	if pr.SourcePresent {
		return ActionReconfigure
	}
	return ActionFreshClone
}
