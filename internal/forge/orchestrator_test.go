package forge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeToolchain records which steps ran and can fail one step of one
// dependency deterministically. Configure writes a real cache file and
// InstallStaging materializes a real staging tree, so probing and committing
// behave exactly as with the real toolchain.
type fakeToolchain struct {
	prefix  string
	payload string // content installed into staging

	failStep string // "fetch", "configure", "compile" or "install"
	failDep  string // empty means any dependency

	mu    sync.Mutex
	calls []string
}

func newFakeToolchain(prefix string) *fakeToolchain {
	return &fakeToolchain{prefix: prefix, payload: "built"}
}

func (f *fakeToolchain) record(step string, dep *Dependency) error {
	f.mu.Lock()
	f.calls = append(f.calls, dep.Name+":"+step)
	f.mu.Unlock()
	if f.failStep == step && (f.failDep == "" || f.failDep == dep.Name) {
		return fmt.Errorf("%s: %s failed deterministically", dep.Name, step)
	}
	return nil
}

func (f *fakeToolchain) callsFor(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, name+":") {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeToolchain) Fetch(dep *Dependency) error {
	if err := f.record("fetch", dep); err != nil {
		return &FetchError{Dep: dep.Name, URL: dep.RepoURL, Err: err}
	}
	return os.MkdirAll(dep.SourceDir(f.prefix), 0o755)
}

func (f *fakeToolchain) Configure(dep *Dependency) error {
	if err := f.record("configure", dep); err != nil {
		return &ConfigureError{Dep: dep.Name, Err: err}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:PATH=%s\n", installPrefixKey, dep.StagingDir(f.prefix))
	for _, k := range dep.Desired.Keys() {
		v, _ := dep.Desired.Get(k)
		fmt.Fprintf(&b, "%s:STRING=%s\n", k, v)
	}
	if err := os.MkdirAll(dep.BuildDir(f.prefix), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dep.BuildDir(f.prefix), cacheFileName), []byte(b.String()), 0o644)
}

func (f *fakeToolchain) Compile(dep *Dependency) error {
	if err := f.record("compile", dep); err != nil {
		return &CompileError{Dep: dep.Name, Err: err}
	}
	return nil
}

func (f *fakeToolchain) InstallStaging(dep *Dependency) error {
	if err := f.record("install", dep); err != nil {
		return &InstallStepError{Dep: dep.Name, Err: err}
	}
	staging := dep.StagingDir(f.prefix)
	if err := os.MkdirAll(filepath.Join(staging, dep.Marker), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(staging, "payload"), []byte(f.payload), 0o644)
}

func testConfig(prefix string) *Config {
	return &Config{
		Prefix: prefix,
		Skip:   map[string]bool{},
		Refs:   map[string]string{},
		Flags:  map[string][]string{},
	}
}

func TestRun_FreshBuildThenIdempotentSecondRun(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	results, err := orch.Run([]*Dependency{dep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Action != ActionFreshClone {
		t.Fatalf("first run action = %s, want fresh-clone", results[0].Action)
	}
	want := []string{"alpha:fetch", "alpha:configure", "alpha:compile", "alpha:install"}
	if got := tc.callsFor("alpha"); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if got := readPayload(t, dep.InstallDir(prefix)); got != "built" {
		t.Fatalf("installed payload = %q", got)
	}

	// Second run with identical desired configuration: probe must classify
	// Matching and no toolchain step may run.
	tc.calls = nil
	results, err = orch.Run([]*Dependency{dep})
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if results[0].Action != ActionSkip {
		t.Fatalf("second run action = %s (%s), want skip", results[0].Action, results[0].Probe.Reason)
	}
	if len(tc.callsFor("alpha")) != 0 {
		t.Fatalf("second run performed toolchain work: %v", tc.calls)
	}
}

func TestRun_ConfigurationChangeRebuildsAndKeepsBackup(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	if _, err := orch.Run([]*Dependency{dep}); err != nil {
		t.Fatalf("initial build failed: %v", err)
	}

	// Change the desired configuration; the recorded cache no longer
	// satisfies it.
	changed := *dep
	changed.Desired = dep.Desired.Merge(mustSignature("ENABLE_GUI=OFF"))
	tc.payload = "rebuilt"

	results, err := orch.Run([]*Dependency{&changed})
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if results[0].Action != ActionReconfigure {
		t.Fatalf("action = %s, want reconfigure", results[0].Action)
	}
	if results[0].Backup == "" {
		t.Fatal("previous install should have been displaced to a backup")
	}
	if got := readPayload(t, results[0].Backup); got != "built" {
		t.Errorf("backup payload = %q, want built", got)
	}
	if got := readPayload(t, changed.InstallDir(prefix)); got != "rebuilt" {
		t.Errorf("final payload = %q, want rebuilt", got)
	}
}

func TestRun_CompileFailureLeavesFinalInstallUntouched(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	if _, err := orch.Run([]*Dependency{dep}); err != nil {
		t.Fatalf("initial build failed: %v", err)
	}

	changed := *dep
	changed.Desired = dep.Desired.Merge(mustSignature("ENABLE_GUI=OFF"))
	tc.failStep = "compile"

	results, err := orch.Run([]*Dependency{&changed})
	if err == nil {
		t.Fatal("expected run to fail")
	}
	var cerr *CompileError
	if !errors.As(results[0].Err, &cerr) {
		t.Fatalf("result error = %v, want CompileError", results[0].Err)
	}
	if got := readPayload(t, changed.InstallDir(prefix)); got != "built" {
		t.Errorf("final payload = %q, want built (untouched)", got)
	}
	if results[0].Backup != "" {
		t.Error("no backup may be created before a verified staging exists")
	}
}

func TestRun_StaleInstallWithoutSourceFetchesBeforeConfiguring(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	// An install whose signature cannot be verified, with no build cache
	// and no source tree on disk.
	writeInstall(t, dep, prefix, "old")

	results, err := orch.Run([]*Dependency{dep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Probe.State != StateStale {
		t.Fatalf("probe state = %s, want stale", results[0].Probe.State)
	}
	if results[0].Action != ActionFreshClone {
		t.Fatalf("action = %s, want fresh-clone (configure would have no source)", results[0].Action)
	}
	want := []string{"alpha:fetch", "alpha:configure", "alpha:compile", "alpha:install"}
	if got := tc.callsFor("alpha"); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if results[0].Backup == "" {
		t.Error("the unverifiable install should have been displaced to a backup")
	}
	if got := readPayload(t, dep.InstallDir(prefix)); got != "built" {
		t.Errorf("final payload = %q, want built", got)
	}
}

func TestRun_PartiallyBuiltReusesBuildDir(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	mkdirAll(t, dep.SourceDir(prefix))
	writeCache(t, dep, prefix, "CMAKE_BUILD_TYPE=Release", "ENABLE_GUI=ON")

	results, err := orch.Run([]*Dependency{dep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Action != ActionReuseBuildDir {
		t.Fatalf("action = %s, want reuse-build-dir", results[0].Action)
	}
	want := []string{"alpha:compile", "alpha:install"}
	if got := tc.callsFor("alpha"); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("calls = %v, want %v (no fetch, no configure)", got, want)
	}
}

func TestRun_FailureIsIsolatedPerDependency(t *testing.T) {
	prefix := t.TempDir()
	alpha := testDep("alpha")
	beta := testDep("beta")
	tc := newFakeToolchain(prefix)
	tc.failStep = "configure"
	tc.failDep = "alpha"
	orch := NewOrchestrator(testConfig(prefix), tc)
	var diag strings.Builder
	orch.errOut = &diag

	results, err := orch.Run([]*Dependency{alpha, beta})
	if err == nil {
		t.Fatal("expected run to report failure")
	}
	if !strings.Contains(diag.String(), "alpha failed") || !strings.Contains(diag.String(), "configure failed") {
		t.Errorf("error stream should name the dependency and step, got: %q", diag.String())
	}
	if strings.Contains(diag.String(), "beta failed") {
		t.Errorf("error stream should not report the successful dependency: %q", diag.String())
	}
	if results[0].Err == nil {
		t.Error("alpha should have failed")
	}
	if results[1].Err != nil {
		t.Errorf("beta should have succeeded: %v", results[1].Err)
	}
	if got := readPayload(t, beta.InstallDir(prefix)); got != "built" {
		t.Errorf("beta payload = %q, want built", got)
	}
	if dirExists(alpha.InstallDir(prefix)) {
		t.Error("alpha must not have been installed")
	}
}

func TestRun_ParallelPipelines(t *testing.T) {
	prefix := t.TempDir()
	deps := []*Dependency{testDep("alpha"), testDep("beta"), testDep("gamma")}
	tc := newFakeToolchain(prefix)
	cfg := testConfig(prefix)
	cfg.DepJobs = 2
	orch := NewOrchestrator(cfg, tc)

	results, err := orch.Run(deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, res := range results {
		if res.Dep != deps[i] {
			t.Errorf("result %d out of order", i)
		}
		if res.Err != nil {
			t.Errorf("%s failed: %v", res.Dep.Name, res.Err)
		}
		if got := readPayload(t, res.Dep.InstallDir(prefix)); got != "built" {
			t.Errorf("%s payload = %q, want built", res.Dep.Name, got)
		}
	}
}

func TestRun_SecondInvocationAgainstLockedPrefixFailsFast(t *testing.T) {
	prefix := t.TempDir()
	release, err := acquirePrefixLock(prefix)
	if err != nil {
		t.Fatalf("failed to take lock: %v", err)
	}
	defer release()

	orch := NewOrchestrator(testConfig(prefix), newFakeToolchain(prefix))
	_, err = orch.Run([]*Dependency{testDep("alpha")})
	if !errors.Is(err, ErrPrefixLocked) {
		t.Fatalf("error = %v, want ErrPrefixLocked", err)
	}
}

func TestRun_StaleStagingLeftoverIsReplaced(t *testing.T) {
	prefix := t.TempDir()
	dep := testDep("alpha")
	tc := newFakeToolchain(prefix)
	orch := NewOrchestrator(testConfig(prefix), tc)

	// Leftover staging from a previous failed attempt.
	mkdirAll(t, dep.StagingDir(prefix))
	if err := os.WriteFile(filepath.Join(dep.StagingDir(prefix), "junk"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := orch.Run([]*Dependency{dep}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fileExists(filepath.Join(dep.InstallDir(prefix), "junk")) {
		t.Error("stale staging content leaked into the final install")
	}
}
