// internal/platform/execx/execx.go
// Package execx runs external tools for pipeline steps. It handles
// subprocess execution, I/O streaming, timeouts and cleanup.
package execx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"datapress/internal/platform/logx"
)

// stderrTailLimit caps how much subprocess stderr is retained for
// diagnostics.
const stderrTailLimit = 16 * 1024

// Command describes one external tool invocation.
type Command struct {
	Path string
	Args []string

	// Dir is the working directory. Empty means inherit.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the parent
	// environment. Secret values go here and only here.
	Env []string

	// Timeout bounds the subprocess. Zero means the caller's context
	// governs.
	Timeout time.Duration

	// Stdout, when set, receives raw stdout instead of the logger.
	Stdout io.Writer
}

// Result captures the outcome of an invocation.
type Result struct {
	ExitCode int
	Stderr   string // captured stderr tail
	Duration time.Duration
}

// Runner executes commands with streamed output and bounded lifetimes.
type Runner struct {
	logger logx.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewRunner creates a Runner that logs through the given logger.
func NewRunner(logger logx.Logger) *Runner {
	return &Runner{logger: logger.With("component", "execx")}
}

// LookPath resolves a binary name against PATH.
func (r *Runner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// Run executes the command, streaming stdout line by line into the
// logger (or cmd.Stdout when set) and capturing a stderr tail. A non-zero
// exit is returned as an error alongside the populated Result.
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	res := Result{ExitCode: -1}
	start := time.Now()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	r.logger.Info("executing command",
		"path", c.Path,
		"args", strings.Join(c.Args, " "),
		"dir", c.Dir,
	)

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("failed to start process: %w", err)
	}
	r.logger.Debug("subprocess started", "pid", cmd.Process.Pid)

	// Read stderr in background to prevent blocking.
	var stderrTail string
	var stderrWg sync.WaitGroup
	stderrWg.Add(1)
	go func() {
		defer stderrWg.Done()
		data, readErr := io.ReadAll(io.LimitReader(stderr, stderrTailLimit))
		if readErr != nil {
			r.logger.Warn("error reading stderr", "error", readErr.Error())
		}
		// Drain anything past the limit so the subprocess never blocks.
		_, _ = io.Copy(io.Discard, stderr)
		stderrTail = string(data)
	}()

	if c.Stdout != nil {
		if _, err := io.Copy(c.Stdout, stdout); err != nil {
			r.logger.Warn("error copying stdout", "error", err.Error())
		}
	} else {
		scanner := bufio.NewScanner(stdout)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			r.logger.Debug("subprocess output", "line", scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			r.logger.Warn("scanner error", "error", err.Error())
		}
	}

	// Per os/exec docs, all reads from the pipes must complete before
	// Wait is called, or Wait may close them mid-read.
	stderrWg.Wait()
	waitErr := cmd.Wait()

	r.mu.Lock()
	r.cmd = nil
	r.mu.Unlock()

	res.Duration = time.Since(start)
	res.Stderr = stderrTail
	res.ExitCode = cmd.ProcessState.ExitCode()

	if len(stderrTail) > 0 {
		r.logger.Debug("subprocess stderr", "output", stderrTail)
	}

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.logger.Warn("subprocess canceled",
				"error", ctxErr.Error(),
				"duration", res.Duration.String(),
			)
			return res, fmt.Errorf("process canceled: %w", ctxErr)
		}
		r.logger.Warn("subprocess exited with error",
			"error", waitErr.Error(),
			"exit_code", res.ExitCode,
			"duration", res.Duration.String(),
		)
		return res, fmt.Errorf("process exited with error: %w", waitErr)
	}

	r.logger.Info("command completed",
		"duration", res.Duration.String(),
	)
	return res, nil
}

// Output executes the command and returns its full stdout as a string.
// Used for short invocations like version checks.
func (r *Runner) Output(ctx context.Context, c Command) (string, Result, error) {
	var sb strings.Builder
	c.Stdout = &sb
	res, err := r.Run(ctx, c)
	return sb.String(), res, err
}

// Close terminates any running subprocess. Safe to call multiple times.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil && r.cmd.Process != nil {
		proc := r.cmd.Process
		state := r.cmd.ProcessState
		if state == nil || !state.Exited() {
			// SIGTERM first, then kill.
			if err := proc.Signal(os.Interrupt); err != nil && err != os.ErrProcessDone {
				r.logger.Warn("SIGTERM failed, forcing kill", "error", err.Error())
				if killErr := proc.Kill(); killErr != nil && killErr != os.ErrProcessDone {
					r.logger.Warn("failed to kill process", "error", killErr.Error())
				}
			}
		}
		r.cmd = nil
	}
	return nil
}
