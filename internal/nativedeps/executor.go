package nativedeps

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Invocation is one fully expanded external command.
type Invocation struct {
	Step  string
	Phase Phase
	Dir   string
	Args  []string
	// Env entries are appended to the inherited environment.
	Env []string
	// Output receives stdout and stderr; nil uses the executor's writers.
	Output io.Writer
}

// String renders the invocation the way it is echoed to logs.
func (inv Invocation) String() string {
	return strings.Join(inv.Args, " ")
}

// CommandRunner runs external commands. Executor is the production runner.
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) error
}

// Executor runs commands as child processes, isolated in their own process
// group so that cancelling the context takes down the whole tool tree
// (cmake -> msbuild -> cl.exe).
type Executor struct {
	Stdout io.Writer
	Stderr io.Writer
	// DryRun prints commands instead of running them.
	DryRun bool
}

// NewExecutor returns an executor wired to the process stdio.
func NewExecutor() *Executor {
	return &Executor{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes inv and returns an error for a non-zero exit status.
func (e *Executor) Run(ctx context.Context, inv Invocation) error {
	if len(inv.Args) == 0 {
		return fmt.Errorf("empty command")
	}
	stdout, stderr := e.Stdout, e.Stderr
	if inv.Output != nil {
		stdout, stderr = inv.Output, inv.Output
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	fmt.Fprintf(stdout, "+ [%s] %s\n", inv.Dir, inv)
	if e.DryRun {
		return nil
	}

	cmd := exec.Command(inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", inv.Args[0], err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd)
		case <-done:
		}
	}()

	if waitErr := cmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			// let the killed group flush its output
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return fmt.Errorf("%s: %w", inv.Args[0], waitErr)
	}
	return nil
}
