package forge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Runner executes external toolchain commands, isolating each child in its
// own process group so that context cancellation reliably kills the whole
// build (cmake spawns make/ninja which spawn compilers).
type Runner struct {
	Context           context.Context // the context to use for cancellation
	ApplyIdlePriority bool            // apply nice -n 19 to spawned commands
}

func NewRunner(ctx context.Context) *Runner {
	return &Runner{Context: ctx}
}

// Run executes the given command. It wires up stdio defaults, optionally
// wraps the command in nice, and puts the child in its own process group so
// the entire tree can be killed when the context is cancelled.
func (r *Runner) Run(cmd *exec.Cmd) error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	if r.ApplyIdlePriority {
		baseArgs = append([]string{"-n", "19", basePath}, baseArgs...)
		basePath = "nice"
	}

	finalCmd := exec.CommandContext(r.Context, basePath, baseArgs...)
	finalCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", basePath, err)
	}

	pgid := finalCmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if r.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", r.Context.Err())
		}
		return waitErr
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it, so failed toolchain
// steps can surface their closing diagnostics verbatim without buffering a
// multi-gigabyte build log.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
