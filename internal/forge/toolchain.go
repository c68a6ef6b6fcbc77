package forge

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// diagTailBytes is how much toolchain output a failed step carries in its
// error. The full stream still goes to the console.
const diagTailBytes = 8 * 1024

// Toolchain is the external build system the orchestrator delegates to. All
// steps write into a dependency's staging path, never its final install
// path. Injectable so the pipeline is testable without running cmake.
type Toolchain interface {
	// Fetch retrieves the dependency's source into its source directory.
	Fetch(dep *Dependency) error
	// Configure generates build metadata in the build tree, baking the
	// staging path as install destination.
	Configure(dep *Dependency) error
	// Compile builds with bounded parallelism.
	Compile(dep *Dependency) error
	// InstallStaging installs the built artifacts into the staging path.
	InstallStaging(dep *Dependency) error
}

// CMake drives cmake for configure/compile/install and git or archive
// download for source retrieval.
type CMake struct {
	cfg    *Config
	runner *Runner
	// stdout for toolchain output; swapped out in tests.
	out io.Writer
}

func NewCMake(cfg *Config, runner *Runner) *CMake {
	return &CMake{cfg: cfg, runner: runner, out: os.Stdout}
}

func (c *CMake) Fetch(dep *Dependency) error {
	return fetchSource(c.runner, c.cfg, dep)
}

func (c *CMake) Configure(dep *Dependency) error {
	buildDir := dep.BuildDir(c.cfg.Prefix)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return &ConfigureError{Dep: dep.Name, Err: err}
	}

	args := []string{
		"-S", dep.SourceDir(c.cfg.Prefix),
		"-B", buildDir,
		fmt.Sprintf("-D%s=%s", installPrefixKey, dep.StagingDir(c.cfg.Prefix)),
	}
	args = append(args, dep.Desired.ConfigureArgs()...)

	stepf("Configuring %s (%s)", dep.Name, dep.Desired)
	tail := newTailBuffer(diagTailBytes)
	cmd := exec.Command("cmake", args...)
	cmd.Stdout = io.MultiWriter(c.out, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	if err := c.runner.Run(cmd); err != nil {
		return &ConfigureError{Dep: dep.Name, Output: tail.String(), Err: err}
	}
	return nil
}

func (c *CMake) Compile(dep *Dependency) error {
	jobs := c.compileJobs()
	stepf("Compiling %s with %d jobs", dep.Name, jobs)

	tail := newTailBuffer(diagTailBytes)
	cmd := exec.Command("cmake",
		"--build", dep.BuildDir(c.cfg.Prefix),
		"--parallel", strconv.Itoa(jobs),
	)
	cmd.Stdout = io.MultiWriter(c.out, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	if err := c.runner.Run(cmd); err != nil {
		return &CompileError{Dep: dep.Name, Output: tail.String(), Err: err}
	}
	return nil
}

func (c *CMake) InstallStaging(dep *Dependency) error {
	stepf("Installing %s into staging", dep.Name)

	// The staging prefix was baked at configure time; no --prefix here so
	// the install matches exactly what the cache records.
	tail := newTailBuffer(diagTailBytes)
	cmd := exec.Command("cmake", "--install", dep.BuildDir(c.cfg.Prefix))
	cmd.Stdout = io.MultiWriter(c.out, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	if err := c.runner.Run(cmd); err != nil {
		return &InstallStepError{Dep: dep.Name, Output: tail.String(), Err: err}
	}
	return nil
}

// compileJobs derives the -j degree: explicit config wins, otherwise the
// host CPU count, halved (minimum 1) when idle priority is requested.
func (c *CMake) compileJobs() int {
	if c.cfg.Jobs > 0 {
		return c.cfg.Jobs
	}
	if c.cfg.IdlePriority {
		return max(runtime.NumCPU()/2, 1)
	}
	return runtime.NumCPU()
}
