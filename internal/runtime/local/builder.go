package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// Build compiles every source in req.SourceDir into req.Output.
//
// The compiler runs inside the source directory with relative file names, so
// diagnostics point at the same paths a student sees when compiling by hand.
func (r *Runtime) Build(ctx context.Context, req harness.BuildRequest) (*harness.BuildResult, error) {
	sources, err := r.collectSources(req.SourceDir)
	if err != nil {
		return nil, &harness.BuildFailureError{Step: req.Name, ExitCode: -1, Err: err}
	}

	output, err := filepath.Abs(req.Output)
	if err != nil {
		return nil, &harness.BuildFailureError{Step: req.Name, ExitCode: -1, Err: fmt.Errorf("resolve output path: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, &harness.BuildFailureError{Step: req.Name, ExitCode: -1, Err: fmt.Errorf("create output directory: %w", err)}
	}

	args := make([]string, 0, len(sources)+len(req.Flags)+2)
	args = append(args, sources...)
	args = append(args, req.Flags...)
	args = append(args, "-o", output)

	buildCtx := ctx
	var cancel context.CancelFunc
	if req.Limits.TimeLimit > 0 {
		buildCtx, cancel = context.WithTimeout(ctx, req.Limits.TimeLimit)
		defer cancel()
	}

	cmd := exec.CommandContext(buildCtx, r.compiler, args...)
	cmd.Dir = req.SourceDir
	cmd.WaitDelay = time.Second
	var diagnostics bytes.Buffer
	cmd.Stdout = &diagnostics
	cmd.Stderr = &diagnostics

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		failure := &harness.BuildFailureError{
			Step:        req.Name,
			ExitCode:    -1,
			Diagnostics: diagnostics.String(),
		}
		var exitErr *exec.ExitError
		switch {
		case buildCtx.Err() != nil && ctx.Err() == nil:
			failure.Err = fmt.Errorf("compiler did not finish within %s", req.Limits.TimeLimit)
		case errors.As(runErr, &exitErr):
			failure.ExitCode = exitErr.ExitCode()
		default:
			failure.Err = runErr
		}
		return nil, failure
	}

	if _, err := os.Stat(output); err != nil {
		return nil, &harness.BuildFailureError{
			Step:        req.Name,
			ExitCode:    0,
			Diagnostics: diagnostics.String(),
			Err:         fmt.Errorf("compiler produced no executable: %w", err),
		}
	}

	return &harness.BuildResult{
		Executable:  output,
		Sources:     sources,
		Diagnostics: diagnostics.String(),
		Duration:    duration,
	}, nil
}

func (r *Runtime) collectSources(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source directory %s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, r.pattern))
	if err != nil {
		return nil, fmt.Errorf("glob sources: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no %s sources in %s", r.pattern, dir)
	}

	sources := make([]string, 0, len(matches))
	for _, match := range matches {
		sources = append(sources, filepath.Base(match))
	}
	sort.Strings(sources)
	return sources, nil
}
