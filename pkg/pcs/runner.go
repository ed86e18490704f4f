package pcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
)

// DefaultTimeout bounds a single external tool invocation
const DefaultTimeout = 30 * time.Second

// Result is the captured output of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExitError is returned when a command exits non-zero, cannot be started or
// runs out of time. It carries whatever output was captured.
type ExitError struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d", strings.Join(e.Command, " "), e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Executor runs an argument vector
type Executor interface {
	Run(ctx context.Context, argv ...string) (*Result, error)
}

// Runner executes commands directly, never through a shell
type Runner struct {
	Timeout time.Duration
}

// NewRunner creates a runner with the given timeout
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run executes argv[0] with the remaining arguments and captures its output
func (r *Runner) Run(ctx context.Context, argv ...string) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("no command specified")
	}
	tool := filepath.Base(argv[0])
	logger := log.WithComponent("pcs")

	execCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		metrics.ToolRunsTotal.WithLabelValues(tool, "success").Inc()
		logger.Debug().Strs("argv", argv).Dur("duration", res.Duration).Msg("command succeeded")
		return res, nil
	}

	exitErr := &ExitError{Command: argv, ExitCode: -1, Stdout: res.Stdout, Stderr: res.Stderr, Err: err}
	result := "failure"
	var ee *exec.ExitError
	switch {
	case execCtx.Err() != nil:
		exitErr.Err = fmt.Errorf("timed out after %s: %w", r.Timeout, execCtx.Err())
		result = "timeout"
	case errors.As(err, &ee):
		exitErr.ExitCode = ee.ExitCode()
	}
	if exitErr.Stderr == "" && exitErr.ExitCode < 0 {
		exitErr.Stderr = exitErr.Err.Error()
	}
	res.ExitCode = exitErr.ExitCode

	metrics.ToolRunsTotal.WithLabelValues(tool, result).Inc()
	logger.Warn().Strs("argv", argv).Int("exit_code", exitErr.ExitCode).Str("stderr", strings.TrimSpace(exitErr.Stderr)).Msg("command failed")
	return res, exitErr
}
