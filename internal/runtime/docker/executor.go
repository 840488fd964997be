package docker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// binaryDir holds the executable inside the container workdir. It is never
// copied back to the host.
const binaryDir = ".labcheck"

// Execute copies req.Dir and the executable into a fresh container, runs the
// executable with req.Stdin attached and copies the workdir back into req.Dir.
//
// A non-zero exit status is not an error. Exceeding the time limit stops the
// container and returns the partial result with *harness.ExecutionTimeoutError.
func (r *Runtime) Execute(ctx context.Context, req harness.ExecRequest) (*harness.ExecutionResult, error) {
	binary, err := os.ReadFile(req.Executable)
	if err != nil {
		return nil, fmt.Errorf("read executable: %w", err)
	}
	name := filepath.Base(req.Executable)

	var files []fileSpec
	if req.Dir != "" {
		files, err = collectDir(req.Dir)
		if err != nil {
			return nil, err
		}
	}
	files = append(files,
		fileSpec{Name: binaryDir, Dir: true},
		fileSpec{Name: path.Join(binaryDir, name), Mode: 0o755, Data: binary},
	)

	if err := r.ensureImage(ctx); err != nil {
		return nil, err
	}

	run, err := r.engine.runProgram(ctx, req.Limits, runOptions{
		Command:     []string{"./" + path.Join(binaryDir, name)},
		Files:       files,
		Stdin:       req.Stdin,
		AttachStdin: true,
		SyncDir:     req.Dir,
		SyncSkip:    []string{binaryDir},
	})
	if err != nil {
		return nil, err
	}

	result := &harness.ExecutionResult{
		Stdout:   run.Stdout,
		ExitCode: run.ExitCode,
		Duration: run.Duration,
	}
	if req.CaptureStderr {
		result.Stderr = run.Stderr
	}

	if run.TimedOut {
		limit := r.engine.effectiveLimits(req.Limits).TimeLimit
		return result, &harness.ExecutionTimeoutError{Executable: name, Limit: limit}
	}
	return result, nil
}
