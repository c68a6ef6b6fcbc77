package forge

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// DepResult records how one dependency's pipeline ended.
type DepResult struct {
	Dep      *Dependency
	Probe    ProbeResult
	Action   Action
	Backup   string
	Duration time.Duration
	Err      error
}

// Orchestrator drives each dependency through probe -> plan -> execute ->
// commit. Dependencies are mutually independent (disjoint subdirectories of
// the prefix), so failures are isolated per dependency and never roll back
// work already committed in the same run.
type Orchestrator struct {
	cfg       *Config
	toolchain Toolchain
	installer *Installer
	// errOut receives the per-dependency failure diagnostics.
	errOut io.Writer
}

func NewOrchestrator(cfg *Config, tc Toolchain) *Orchestrator {
	return &Orchestrator{cfg: cfg, toolchain: tc, installer: NewInstaller(), errOut: os.Stderr}
}

// Run processes the given dependencies and returns one result each, in input
// order. The returned error is non-nil when any pipeline failed; successful
// pipelines from the same run stay committed.
func (o *Orchestrator) Run(deps []*Dependency) ([]DepResult, error) {
	release, err := acquirePrefixLock(o.cfg.Prefix)
	if err != nil {
		return nil, err
	}
	defer release()

	workers := o.cfg.DepJobs
	if workers < 1 {
		workers = 1
	}
	if workers > len(deps) {
		workers = len(deps)
	}

	var results []DepResult
	if workers <= 1 {
		for _, dep := range deps {
			results = append(results, o.runOne(dep))
		}
	} else {
		results = o.runParallel(deps, workers)
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(o.errOut, "%s failed after %s: %v\n", res.Dep.Name, res.Duration.Round(time.Second), res.Err)
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d dependencies failed", failed, len(results))
	}
	return results, nil
}

// runParallel fans the pipelines out over a bounded worker pool. Each
// dependency still runs its own pipeline start to finish; only pipelines of
// different dependencies overlap.
func (o *Orchestrator) runParallel(deps []*Dependency, workers int) []DepResult {
	jobs := make(chan int)
	results := make([]DepResult, len(deps))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.runOne(deps[i])
			}
		}()
	}
	for i := range deps {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// runOne executes one dependency's full pipeline. Any step error aborts this
// dependency only; the final install path is left exactly as the probe found
// it, and a failed staging tree is kept for post-mortem inspection.
func (o *Orchestrator) runOne(dep *Dependency) DepResult {
	start := time.Now()
	res := DepResult{Dep: dep}

	res.Probe = ProbeDependency(dep, o.cfg.Prefix)
	res.Action = Plan(res.Probe)
	stepf("%s: %s (%s)", dep.Name, res.Action, res.Probe.Reason)

	if res.Action == ActionSkip {
		res.Duration = time.Since(start)
		return res
	}

	res.Err = o.execute(dep, res.Action)
	if res.Err == nil {
		res.Backup, res.Err = o.installer.Commit(dep, o.cfg.Prefix)
	}
	res.Duration = time.Since(start)
	if res.Err == nil {
		stepf("%s done in %s", dep.Name, res.Duration.Round(time.Second))
	}
	return res
}

// execute runs the toolchain steps the planned action calls for. Everything
// is written under the staging path; the final install path is untouched
// until Commit.
func (o *Orchestrator) execute(dep *Dependency, action Action) error {
	// A staging leftover is from a previous failed attempt; this new
	// attempt supersedes it as post-mortem material.
	staging := dep.StagingDir(o.cfg.Prefix)
	if dirExists(staging) {
		debugf("Removing stale staging dir %s\n", staging)
		if err := os.RemoveAll(staging); err != nil {
			return fmt.Errorf("failed to clear stale staging dir %s: %w", staging, err)
		}
	}

	if action == ActionFreshClone {
		if err := o.toolchain.Fetch(dep); err != nil {
			return err
		}
	}
	if action == ActionFreshClone || action == ActionReconfigure {
		if err := discardBuildConfig(dep.BuildDir(o.cfg.Prefix)); err != nil {
			return err
		}
		if err := o.toolchain.Configure(dep); err != nil {
			return err
		}
	}
	if err := o.toolchain.Compile(dep); err != nil {
		return err
	}
	return o.toolchain.InstallStaging(dep)
}
