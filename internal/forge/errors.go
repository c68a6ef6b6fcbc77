package forge

import (
	"errors"
	"fmt"
)

// ErrPrefixLocked is returned when another orchestrator run holds the
// advisory lock on the installation prefix.
var ErrPrefixLocked = errors.New("installation prefix is locked by another run")

// FetchError reports a failure to retrieve a dependency's source
// (git clone/checkout or archive download).
type FetchError struct {
	Dep string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch of %s failed: %v", e.Dep, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigureError reports a failed toolchain configure step. Output holds the
// tail of the toolchain's diagnostic output, verbatim.
type ConfigureError struct {
	Dep    string
	Output string
	Err    error
}

func (e *ConfigureError) Error() string {
	return fmt.Sprintf("%s: configure failed: %v\n%s", e.Dep, e.Err, e.Output)
}

func (e *ConfigureError) Unwrap() error { return e.Err }

// CompileError reports a failed compile step.
type CompileError struct {
	Dep    string
	Output string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: compile failed: %v\n%s", e.Dep, e.Err, e.Output)
}

func (e *CompileError) Unwrap() error { return e.Err }

// InstallStepError reports a failed toolchain install-into-staging step.
type InstallStepError struct {
	Dep    string
	Output string
	Err    error
}

func (e *InstallStepError) Error() string {
	return fmt.Sprintf("%s: install step failed: %v\n%s", e.Dep, e.Err, e.Output)
}

func (e *InstallStepError) Unwrap() error { return e.Err }

// VerificationError reports a staging tree that is missing the artifact
// marker expected for a complete install. The final path is untouched.
type VerificationError struct {
	Dep     string
	Staging string
	Marker  string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: staging tree %s is missing expected marker %q, refusing to commit",
		e.Dep, e.Staging, e.Marker)
}

// SwapError reports a failed rename during the commit of a staging tree.
// Degraded reports the backup-moved-but-swap-failed case: the previous
// install was renamed away but the new one could not take its place, so the
// final path is absent (still safe, never half-written).
type SwapError struct {
	Dep      string
	From     string
	To       string
	Backup   string
	Degraded bool
	Err      error
}

func (e *SwapError) Error() string {
	if e.Degraded {
		return fmt.Sprintf("%s: rename %s -> %s failed: %v (previous install preserved at %s; final path is now absent)",
			e.Dep, e.From, e.To, e.Err, e.Backup)
	}
	return fmt.Sprintf("%s: rename %s -> %s failed: %v", e.Dep, e.From, e.To, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// UnsupportedEnvironmentError reports a required host tool that is not
// installed.
type UnsupportedEnvironmentError struct {
	Tool string
	Hint string
}

func (e *UnsupportedEnvironmentError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("required tool %q not found in PATH (%s)", e.Tool, e.Hint)
	}
	return fmt.Sprintf("required tool %q not found in PATH", e.Tool)
}
