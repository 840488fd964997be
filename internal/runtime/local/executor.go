package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// Execute runs req.Executable in req.Dir with req.Stdin as standard input.
//
// A non-zero exit status is not an error: a crashing analyzer is a failed
// case, judged by its output. Exceeding the time limit kills the process and
// returns the partial result with *harness.ExecutionTimeoutError.
func (r *Runtime) Execute(ctx context.Context, req harness.ExecRequest) (*harness.ExecutionResult, error) {
	executable, err := filepath.Abs(req.Executable)
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Limits.TimeLimit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Limits.TimeLimit)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, executable)
	cmd.Dir = req.Dir
	cmd.Stdin = bytes.NewReader(req.Stdin)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if req.CaptureStderr {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	runErr := cmd.Run()
	result := &harness.ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr == nil {
		return result, nil
	}

	if runCtx.Err() != nil && ctx.Err() == nil {
		result.ExitCode = -1
		return result, &harness.ExecutionTimeoutError{Executable: filepath.Base(executable), Limit: req.Limits.TimeLimit}
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return result, nil
	}
	return nil, fmt.Errorf("run %s: %w", filepath.Base(executable), runErr)
}
