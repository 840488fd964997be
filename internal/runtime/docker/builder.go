package docker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// buildOutputDir keeps the compiled binary out of the copied source tree.
const buildOutputDir = "/tmp"

// Build copies req.SourceDir into a compiler container, compiles every
// matching source and extracts the executable to req.Output.
func (r *Runtime) Build(ctx context.Context, req harness.BuildRequest) (*harness.BuildResult, error) {
	sources, err := r.collectSources(req.SourceDir)
	if err != nil {
		return nil, buildError(req.Name, err)
	}
	files, err := collectDir(req.SourceDir)
	if err != nil {
		return nil, buildError(req.Name, err)
	}

	output, err := filepath.Abs(req.Output)
	if err != nil {
		return nil, buildError(req.Name, fmt.Errorf("resolve output path: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, buildError(req.Name, fmt.Errorf("create output directory: %w", err))
	}

	if err := r.ensureImage(ctx); err != nil {
		return nil, buildError(req.Name, err)
	}

	binaryPath := path.Join(buildOutputDir, "labcheck-"+filepath.Base(output))
	cmd := []string{r.config.Compiler}
	cmd = append(cmd, sources...)
	cmd = append(cmd, req.Flags...)
	cmd = append(cmd, "-o", binaryPath)

	engine := r.engine
	limits := engine.effectiveLimits(req.Limits)
	containerID, cleanup, err := engine.createContainer(ctx, limits, cmd, false)
	if err != nil {
		return nil, buildError(req.Name, err)
	}
	defer cleanup()

	if err := engine.copyFiles(ctx, containerID, r.config.Workdir, files); err != nil {
		return nil, buildError(req.Name, fmt.Errorf("copy sources: %w", err))
	}

	start := time.Now()
	if err := engine.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, buildError(req.Name, fmt.Errorf("start container: %w", err))
	}

	run, err := engine.awaitRun(ctx, containerID, limits, start)
	if err != nil {
		return nil, buildError(req.Name, err)
	}

	diagnostics := string(run.Stdout) + string(run.Stderr)
	switch {
	case run.TimedOut:
		return nil, &harness.BuildFailureError{
			Step:        req.Name,
			ExitCode:    -1,
			Diagnostics: diagnostics,
			Err:         fmt.Errorf("compiler did not finish within %s", limits.TimeLimit),
		}
	case run.OOMKilled:
		return nil, &harness.BuildFailureError{
			Step:        req.Name,
			ExitCode:    run.ExitCode,
			Diagnostics: diagnostics,
			Err:         fmt.Errorf("compiler exceeded the memory limit"),
		}
	case run.ExitCode != 0:
		return nil, &harness.BuildFailureError{
			Step:        req.Name,
			ExitCode:    run.ExitCode,
			Diagnostics: diagnostics,
		}
	}

	binary, err := engine.copyFileFromContainer(ctx, containerID, binaryPath)
	if err != nil {
		return nil, &harness.BuildFailureError{
			Step:        req.Name,
			Diagnostics: diagnostics,
			Err:         fmt.Errorf("extract compiled binary: %w", err),
		}
	}
	if err := os.WriteFile(output, binary, 0o755); err != nil {
		return nil, buildError(req.Name, fmt.Errorf("write executable: %w", err))
	}

	return &harness.BuildResult{
		Executable:  output,
		Sources:     sources,
		Diagnostics: diagnostics,
		Duration:    run.Duration,
	}, nil
}

// buildError reports a build that never produced compiler output. It is
// fatal to the stage just like a compile error.
func buildError(step string, err error) error {
	return &harness.BuildFailureError{Step: step, ExitCode: -1, Err: err}
}

func (r *Runtime) collectSources(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source directory %s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, r.config.SourcePattern))
	if err != nil {
		return nil, fmt.Errorf("glob sources: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no %s sources in %s", r.config.SourcePattern, dir)
	}

	sources := make([]string, 0, len(matches))
	for _, match := range matches {
		sources = append(sources, filepath.Base(match))
	}
	sort.Strings(sources)
	return sources, nil
}
