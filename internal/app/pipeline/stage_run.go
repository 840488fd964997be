package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/fixture"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/golden"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/register"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/simulator"
)

// stageRun holds the state of one stage run over its discovered cases.
type stageRun struct {
	svc     *Service
	rc      harness.RunContext
	profile harness.Profile

	cases     []harness.TestCase
	generator string
	analyzer  string
	driver    *simulator.Driver

	summary harness.RunSummary
}

func newStageRun(svc *Service, rc harness.RunContext, profile harness.Profile) *stageRun {
	return &stageRun{
		svc:     svc,
		rc:      rc,
		profile: profile,
		summary: harness.RunSummary{RunID: rc.ID.String(), Stage: profile.Stage},
	}
}

func (r *stageRun) step(format string, args ...any) {
	if r.rc.Verbose {
		r.svc.reporter.Step(format, args...)
	}
}

// discover enumerates the cases and applies the offset.
func (r *stageRun) discover() error {
	cases, err := fixture.Discover(r.rc.FixtureRoot, r.profile.Extensions)
	if err != nil {
		return err
	}
	offset := r.rc.Offset
	if offset > len(cases) {
		offset = len(cases)
	}
	r.cases = cases[offset:]
	r.summary.Total = len(r.cases)
	return nil
}

// prepare creates the scratch layout, builds everything that is built once
// and opens the simulator session.
func (r *stageRun) prepare(ctx context.Context) error {
	if err := os.MkdirAll(r.rc.BinDir(), 0o755); err != nil {
		return &harness.StagingError{Case: "-", Path: r.rc.BinDir(), Err: err}
	}
	if err := resetDir(r.rc.CaseDir()); err != nil {
		return &harness.StagingError{Case: "-", Path: r.rc.CaseDir(), Err: err}
	}

	if step := r.profile.Generator; step != nil {
		exe, err := r.build(ctx, *step)
		if err != nil {
			return err
		}
		r.generator = exe
	}
	if !r.profile.RebuildPerCase() {
		exe, err := r.build(ctx, r.profile.Analyzer)
		if err != nil {
			return err
		}
		r.analyzer = exe
	}

	if r.profile.Check == harness.CheckRegister {
		if r.svc.simulator == nil {
			return &harness.SimulatorSessionError{Op: "open", Err: errors.New("no simulator backend configured")}
		}
		r.driver = simulator.NewDriver(r.svc.simulator(), simulator.Config{
			MaxWait:      r.rc.SimMaxWait,
			PollInterval: r.rc.SimPollInterval,
			Register:     r.profile.Register,
			Logf:         r.step,
		})
		if err := r.driver.Open(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *stageRun) build(ctx context.Context, step harness.BuildStep) (string, error) {
	flags := step.Flags
	if len(flags) == 0 {
		flags = harness.DefaultCompilerFlags
	}
	res, err := r.svc.runtime.Build(ctx, harness.BuildRequest{
		Name:      step.Name,
		SourceDir: filepath.Join(r.rc.SourceRoot, step.SourceDir),
		Output:    filepath.Join(r.rc.BinDir(), step.Name),
		Flags:     flags,
		Limits:    r.rc.BuildLimits,
	})
	if err != nil {
		return "", err
	}
	r.step("built %s from %d source(s) in %s", step.Name, len(res.Sources), res.Duration.Round(time.Millisecond))
	return res.Executable, nil
}

// runCases processes every case in order. A fatal error marks the rest NOT RUN.
func (r *stageRun) runCases(ctx context.Context) {
	for idx, tc := range r.cases {
		if r.summary.Fatal != nil {
			r.record(harness.CaseResult{Case: tc.Name, Index: r.rc.Offset + idx, Status: harness.StatusNotRun})
			continue
		}
		if err := ctx.Err(); err != nil {
			r.summary.Fatal = err
			r.record(harness.CaseResult{Case: tc.Name, Index: r.rc.Offset + idx, Status: harness.StatusNotRun})
			continue
		}

		start := time.Now()
		err := r.executeCase(ctx, tc)
		result := harness.CaseResult{
			Case:     tc.Name,
			Index:    r.rc.Offset + idx,
			Status:   harness.StatusPassed,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Status = harness.StatusFailed
			result.Err = err
			result.Detail = detailFor(err)
			if harness.IsFatal(err) {
				r.summary.Fatal = err
			}
		}
		r.record(result)
	}
}

// abort marks every case NOT RUN after a failure before the first case.
func (r *stageRun) abort(err error) {
	r.summary.Fatal = err
	for idx, tc := range r.cases {
		r.record(harness.CaseResult{Case: tc.Name, Index: r.rc.Offset + idx, Status: harness.StatusNotRun})
	}
}

func (r *stageRun) record(result harness.CaseResult) {
	r.summary.Record(result)
	r.svc.reporter.CaseFinished(result)
}

// executeCase stages, runs and judges one case. The scratch directory is
// emptied afterwards whatever the outcome; failing to do so is fatal.
func (r *stageRun) executeCase(ctx context.Context, tc harness.TestCase) (err error) {
	caseDir := r.rc.CaseDir()
	defer func() {
		if cleanErr := resetDir(caseDir); cleanErr != nil {
			err = errors.Join(err, &harness.StagingError{Case: tc.Name, Path: caseDir, Err: cleanErr})
		}
	}()

	staged, err := stageCase(caseDir, tc, r.profile)
	if err != nil {
		return err
	}
	r.step("%s: staged %d fixture(s)", tc.Name, len(staged.files))

	analyzer := r.analyzer
	if r.profile.RebuildPerCase() {
		if err := r.runGenerator(ctx, tc, staged); err != nil {
			return err
		}
		if analyzer, err = r.build(ctx, r.profile.Analyzer); err != nil {
			return err
		}
	}

	input, err := staged.read(harness.RoleInput)
	if err != nil {
		return &harness.StagingError{Case: tc.Name, Path: staged.files[harness.RoleInput], Err: err}
	}

	res, err := r.svc.runtime.Execute(ctx, harness.ExecRequest{
		Executable:    analyzer,
		Stdin:         input,
		Dir:           caseDir,
		Limits:        r.rc.ExecLimits,
		CaptureStderr: r.rc.CaptureStderr,
	})
	if err != nil {
		return err
	}
	r.step("%s: %s %s in %s", tc.Name, r.profile.Analyzer.Name, describeExit(res.ExitCode), res.Duration.Round(time.Millisecond))
	if r.rc.CaptureStderr && len(res.Stderr) > 0 {
		r.step("%s: stderr:\n%s", tc.Name, res.Stderr)
	}

	if r.profile.Check == harness.CheckRegister {
		return r.checkRegister(ctx, tc, staged, res)
	}
	return golden.CompareFile(res.Stdout, staged.files[harness.RoleExpected])
}

// runGenerator feeds the source-language fixture to the generator inside the
// source root, where it rewrites the analyzer's tables.
func (r *stageRun) runGenerator(ctx context.Context, tc harness.TestCase, staged stagedCase) error {
	source, err := staged.read(harness.RoleSource)
	if err != nil {
		return &harness.StagingError{Case: tc.Name, Path: staged.files[harness.RoleSource], Err: err}
	}

	res, err := r.svc.runtime.Execute(ctx, harness.ExecRequest{
		Executable:    r.generator,
		Stdin:         source,
		Dir:           r.rc.SourceRoot,
		Limits:        r.rc.ExecLimits,
		CaptureStderr: true,
	})
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("generator %s", describeExit(res.ExitCode))
	}
	r.step("%s: generator finished in %s", tc.Name, res.Duration.Round(time.Millisecond))
	return nil
}

// checkRegister runs the produced program on the simulator and compares the
// result register with the expected signed value.
func (r *stageRun) checkRegister(ctx context.Context, tc harness.TestCase, staged stagedCase, res *harness.ExecutionResult) error {
	if res.ExitCode != 0 {
		return fmt.Errorf("%s %s, simulator not started", r.profile.Analyzer.Name, describeExit(res.ExitCode))
	}

	program, err := r.program(res)
	if err != nil {
		return err
	}

	expected, err := staged.read(harness.RoleExpected)
	if err != nil {
		return &harness.StagingError{Case: tc.Name, Path: staged.files[harness.RoleExpected], Err: err}
	}
	want, err := register.ParseExpected(string(expected))
	if err != nil {
		return err
	}

	outcome, err := r.driver.Execute(ctx, program)
	if err != nil {
		return err
	}
	r.step("%s: simulated run took %s", tc.Name, outcome.Elapsed.Round(time.Millisecond))

	if outcome.Register.Signed != want {
		return &harness.ComparisonMismatchError{
			Diff: fmt.Sprintf("%s = %s, expected %d\n", r.profile.Register, outcome.Register, want),
		}
	}
	return nil
}

// program prefers the program file written into the case directory and falls
// back to stdout.
func (r *stageRun) program(res *harness.ExecutionResult) (string, error) {
	if r.profile.ProgramFile != "" {
		data, err := os.ReadFile(filepath.Join(r.rc.CaseDir(), r.profile.ProgramFile))
		switch {
		case err == nil && len(data) > 0:
			return string(data), nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read %s: %w", r.profile.ProgramFile, err)
		}
	}
	if len(res.Stdout) == 0 {
		return "", fmt.Errorf("%s produced no program", r.profile.Analyzer.Name)
	}
	return string(res.Stdout), nil
}

// close ends the simulator session, if one was opened.
func (r *stageRun) close() error {
	if r.driver == nil {
		return nil
	}
	return r.driver.Close()
}
