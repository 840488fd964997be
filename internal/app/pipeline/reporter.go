package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// Reporter receives progress as it happens. Case outcomes are reported the
// moment each case finishes.
type Reporter interface {
	StageStarted(rc harness.RunContext, stage harness.Stage, cases int)
	Step(format string, args ...any)
	CaseFinished(result harness.CaseResult)
	StageFinished(summary harness.RunSummary)
}

// LogReporter prints human-readable progress through a *log.Logger.
type LogReporter struct {
	logger *log.Logger
	// shown is the build failure whose diagnostics were already printed below
	// a FAIL line of the current stage.
	shown *harness.BuildFailureError
}

var _ Reporter = (*LogReporter)(nil)

// NewLogReporter returns a reporter writing to logger, or to the standard
// logger when logger is nil.
func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) StageStarted(rc harness.RunContext, stage harness.Stage, cases int) {
	r.shown = nil
	r.logger.Printf("[%s] run %s: %d case(s) from %s (offset %d)", stage, rc.ID, cases, rc.FixtureRoot, rc.Offset)
}

func (r *LogReporter) Step(format string, args ...any) {
	r.logger.Printf("  "+format, args...)
}

func (r *LogReporter) CaseFinished(result harness.CaseResult) {
	switch result.Status {
	case harness.StatusPassed:
		r.logger.Printf("PASS %s (%s)", result.Case, result.Duration.Round(time.Millisecond))
	case harness.StatusNotRun:
		r.logger.Printf("FAIL %s: not run", result.Case)
	default:
		r.logger.Printf("FAIL %s: %v", result.Case, result.Err)
		if result.Detail != "" {
			var buildErr *harness.BuildFailureError
			if errors.As(result.Err, &buildErr) {
				r.shown = buildErr
			}
			for _, line := range strings.Split(strings.TrimRight(result.Detail, "\n"), "\n") {
				r.logger.Printf("    %s", line)
			}
		}
	}
}

func (r *LogReporter) StageFinished(summary harness.RunSummary) {
	if summary.Fatal != nil {
		r.logger.Printf("[%s] aborted: %v", summary.Stage, summary.Fatal)
		var buildErr *harness.BuildFailureError
		if errors.As(summary.Fatal, &buildErr) && buildErr.Diagnostics != "" && buildErr != r.shown {
			r.logger.Printf("compiler output:\n%s", strings.TrimRight(buildErr.Diagnostics, "\n"))
		}
	}
	r.logger.Printf("[%s] passed %d/%d", summary.Stage, summary.Passed, summary.Total)
	if len(summary.Failed) > 0 {
		r.logger.Printf("[%s] failed: %s", summary.Stage, strings.Join(summary.Failed, ", "))
	}
	r.shown = nil
}

// detailFor extracts the diagnostic text printed below a FAIL line.
func detailFor(err error) string {
	var mismatch *harness.ComparisonMismatchError
	if errors.As(err, &mismatch) {
		return mismatch.Diff
	}
	var buildErr *harness.BuildFailureError
	if errors.As(err, &buildErr) {
		return buildErr.Diagnostics
	}
	return ""
}

func describeExit(code int) string {
	if code < 0 {
		return "was killed"
	}
	return fmt.Sprintf("exited with status %d", code)
}
