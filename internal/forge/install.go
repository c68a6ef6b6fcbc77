package forge

import (
	"os"
	"path/filepath"
	"time"
)

// Installer commits verified staging trees into place. now is injectable so
// tests get stable backup names.
type Installer struct {
	now func() time.Time
}

func NewInstaller() *Installer {
	return &Installer{now: time.Now}
}

// Commit atomically promotes dep's staging tree to its final install
// directory. A pre-existing install is renamed to a timestamped backup
// first, never deleted; the backup's retention is the user's business.
// Returns the backup path, or "" when there was nothing to displace.
//
// The only window in which the final path is absent is between the two
// renames. If the second rename fails the previous install survives under
// the backup path and the degraded state is reported via SwapError; the
// final path is still never half-written.
func (in *Installer) Commit(dep *Dependency, prefix string) (string, error) {
	staging := dep.StagingDir(prefix)
	final := dep.InstallDir(prefix)

	marker := filepath.Join(staging, dep.Marker)
	if !dirExists(marker) {
		return "", &VerificationError{Dep: dep.Name, Staging: staging, Marker: dep.Marker}
	}

	backup := ""
	if dirExists(final) {
		backup = dep.BackupDir(prefix, in.now())
		debugf("Moving previous %s install to %s\n", dep.Name, backup)
		if err := os.Rename(final, backup); err != nil {
			return "", &SwapError{Dep: dep.Name, From: final, To: backup, Err: err}
		}
	}

	if err := os.Rename(staging, final); err != nil {
		if backup != "" {
			return backup, &SwapError{Dep: dep.Name, From: staging, To: final,
				Backup: backup, Degraded: true, Err: err}
		}
		return "", &SwapError{Dep: dep.Name, From: staging, To: final, Err: err}
	}

	if backup != "" {
		stepf("Installed %s (previous install kept at %s)", dep.Name, backup)
	} else {
		stepf("Installed %s", dep.Name)
	}
	return backup, nil
}
