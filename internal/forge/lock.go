package forge

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName lives directly under the prefix; the flock on it serializes
// orchestrator runs against that prefix.
const lockFileName = ".engrid-deps.lock"

// acquirePrefixLock takes an exclusive advisory lock on the prefix. A second
// run against the same prefix fails fast with ErrPrefixLocked instead of
// racing the first one. The returned release func also removes the lock file.
func acquirePrefixLock(prefix string) (func(), error) {
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prefix %s: %w", prefix, err)
	}
	path := filepath.Join(prefix, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w (%s)", ErrPrefixLocked, path)
	}
	release := func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		_ = os.Remove(path)
	}
	return release, nil
}
