package forge

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"lukechampine.com/blake3"
)

// fetchSource retrieves dep's source into its source directory under the
// prefix. A release archive is preferred when one is configured; otherwise
// the git repository is cloned (or updated) and the ref checked out.
func fetchSource(runner *Runner, cfg *Config, dep *Dependency) error {
	srcDir := dep.SourceDir(cfg.Prefix)
	if dep.ArchiveURL != "" {
		return fetchArchiveSource(cfg, dep, srcDir)
	}
	return fetchGitSource(runner, dep, srcDir)
}

func fetchGitSource(runner *Runner, dep *Dependency, srcDir string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.RepoURL,
			Err: &UnsupportedEnvironmentError{Tool: "git", Hint: "needed to clone " + dep.RepoURL}}
	}

	if dirExists(filepath.Join(srcDir, ".git")) {
		stepf("Updating %s source from %s", dep.Name, dep.RepoURL)
		cmd := exec.Command("git", "-C", srcDir, "fetch", "--tags", "origin")
		if err := runner.Run(cmd); err != nil {
			return &FetchError{Dep: dep.Name, URL: dep.RepoURL, Err: fmt.Errorf("git fetch: %w", err)}
		}
	} else {
		stepf("Cloning %s from %s", dep.Name, dep.RepoURL)
		cmd := exec.Command("git", "clone", dep.RepoURL, srcDir)
		if err := runner.Run(cmd); err != nil {
			return &FetchError{Dep: dep.Name, URL: dep.RepoURL, Err: fmt.Errorf("git clone: %w", err)}
		}
	}

	// Checking out a tag detaches HEAD; that is expected, silence the advice.
	exec.Command("git", "-C", srcDir, "config", "advice.detachedHead", "false").Run()

	if dep.Ref != "" {
		cmd := exec.Command("git", "-C", srcDir, "checkout", dep.Ref)
		if err := runner.Run(cmd); err != nil {
			return &FetchError{Dep: dep.Name, URL: dep.RepoURL,
				Err: fmt.Errorf("git checkout %s: %w", dep.Ref, err)}
		}
	}
	return nil
}

func fetchArchiveSource(cfg *Config, dep *Dependency, srcDir string) error {
	archive := filepath.Join(cfg.CacheDir, filepath.Base(dep.ArchiveURL))
	if err := downloadFile(dep.ArchiveURL, archive); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
	}
	if dep.Blake3 != "" {
		if err := verifyBlake3(archive, dep.Blake3); err != nil {
			// A corrupt cache entry would fail identically on every later
			// run; drop it so the next attempt re-downloads.
			tryRemoveCachedFile(archive)
			return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
		}
	}

	// Extract into a scratch dir next to the source tree, then move into
	// place, so an interrupted extraction never leaves a half-populated
	// source directory behind.
	scratch, cleanup, err := newScratchDir(cfg.Prefix, dep.Name+"-extract")
	if err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
	}
	defer cleanup()

	stepf("Extracting %s", filepath.Base(archive))
	if err := extractArchive(archive, scratch); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
	}
	if err := os.RemoveAll(srcDir); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
	}
	if err := os.Rename(scratch, srcDir); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.ArchiveURL, Err: err}
	}
	return nil
}

// downloadFile downloads url into destFile, guarded by an advisory lock so
// two runs fetching the same archive do not trample each other's download.
func downloadFile(url, destFile string) error {
	if err := os.MkdirAll(filepath.Dir(destFile), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	lockPath := destFile + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire download lock: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// Double check: the file may have appeared while we waited for the lock.
	if _, err := os.Stat(destFile); err == nil {
		debugf("File %s already cached, skipping download.\n", destFile)
		_ = os.Remove(lockPath)
		return nil
	}
	defer func() {
		if _, err := os.Stat(destFile); err == nil {
			_ = os.Remove(lockPath)
		}
	}()

	stepf("Downloading %s", url)
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %s", resp.Status)
	}

	partPath := destFile + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", partPath, err)
	}

	var dst io.Writer = out
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destFile))
		dst = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(partPath)
		return fmt.Errorf("download interrupted: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partPath)
		return err
	}
	return os.Rename(partPath, destFile)
}

// tryRemoveCachedFile removes a cached archive unless another process holds
// its download lock.
func tryRemoveCachedFile(path string) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		_ = os.Remove(path)
		return
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		// Someone is downloading or verifying the file; skip cleanup.
		return
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = os.Remove(path)
	_ = os.Remove(lockPath)
}

// verifyBlake3 checks path against the expected BLAKE3-256 hex digest.
func verifyBlake3(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", filepath.Base(path), got, want)
	}
	debugf("Checksum verified for %s\n", filepath.Base(path))
	return nil
}
