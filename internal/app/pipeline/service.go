// Package pipeline orchestrates stage runs: discover fixtures, build the stage
// implementation, run every case and judge its output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

// Config wires the collaborators of a Service. Only Runtime is required.
type Config struct {
	// Profiles overrides the built-in stage profiles.
	Profiles map[harness.Stage]harness.Profile
	// Simulator creates the backend for stages judged by a register value.
	Simulator func() ports.RemoteExecutionBackend
	Reporter  Reporter
	// Publisher, when set, receives every summary produced by ExecuteFromSource.
	Publisher ports.SummaryPublisher
}

// Service runs stages through a runtime implementation.
type Service struct {
	runtime   ports.Runtime
	profiles  map[harness.Stage]harness.Profile
	simulator func() ports.RemoteExecutionBackend
	reporter  Reporter
	publisher ports.SummaryPublisher
}

// NewService constructs a Service with the provided runtime dependency.
func NewService(runtime ports.Runtime, cfg Config) *Service {
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = harness.DefaultProfiles()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = NewLogReporter(nil)
	}
	return &Service{
		runtime:   runtime,
		profiles:  profiles,
		simulator: cfg.Simulator,
		reporter:  reporter,
		publisher: cfg.Publisher,
	}
}

// RunStage runs every discovered case of stage strictly in order.
//
// Fixture discovery, build and session failures abort the run: the cases not
// yet processed are recorded as NOT RUN and the summary carries the error.
func (s *Service) RunStage(ctx context.Context, rc harness.RunContext, stage harness.Stage) harness.RunSummary {
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}

	profile, ok := s.profiles[stage]
	if !ok {
		return harness.RunSummary{RunID: rc.ID.String(), Stage: stage, Fatal: fmt.Errorf("no profile for stage %q", stage)}
	}
	if err := profile.Validate(); err != nil {
		return harness.RunSummary{RunID: rc.ID.String(), Stage: stage, Fatal: err}
	}

	if rc.WorkDir == "" {
		dir, err := os.MkdirTemp("", "labcheck-")
		if err != nil {
			return harness.RunSummary{RunID: rc.ID.String(), Stage: stage, Fatal: fmt.Errorf("create work directory: %w", err)}
		}
		defer os.RemoveAll(dir)
		rc.WorkDir = dir
	}

	run := newStageRun(s, rc, profile)
	if err := run.discover(); err != nil {
		run.summary.Fatal = err
		s.reporter.StageFinished(run.summary)
		return run.summary
	}
	s.reporter.StageStarted(rc, stage, len(run.cases))
	if len(run.cases) == 0 {
		log.Printf("warning: offset %d skips every case of stage %s", rc.Offset, stage)
	}

	if err := run.prepare(ctx); err != nil {
		run.abort(err)
	} else {
		run.runCases(ctx)
	}

	if err := run.close(); err != nil {
		log.Printf("warning: %v", err)
	}

	s.reporter.StageFinished(run.summary)
	return run.summary
}

// ExecuteFromSource pulls run requests from source and processes them one at
// a time until the source signals completion via io.EOF or ctx ends.
//
// Each request starts from base; its non-empty fields override the matching
// RunContext fields. When onSummary is provided it is invoked after every run.
func (s *Service) ExecuteFromSource(
	ctx context.Context,
	source ports.RunRequestSource,
	base harness.RunContext,
	onSummary func(harness.RunSummary),
) error {
	for {
		req, err := source.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("get next request: %w", err)
		}

		rc := base
		rc.ID = uuid.New()
		if req.SourceRoot != "" {
			rc.SourceRoot = req.SourceRoot
		}
		if req.FixtureRoot != "" {
			rc.FixtureRoot = req.FixtureRoot
		}
		if req.Offset > 0 {
			rc.Offset = req.Offset
		}

		summary := s.RunStage(ctx, rc, req.Stage)
		if req.ID != "" {
			summary.RunID = req.ID
		}

		if s.publisher != nil {
			if err := s.publisher.PublishSummary(ctx, summary); err != nil {
				log.Printf("warning: publish summary for %s: %v", summary.RunID, err)
			}
		}
		if onSummary != nil {
			onSummary(summary)
		}
	}
}

// Close releases any resources owned by the underlying runtime.
func (s *Service) Close() error {
	return s.runtime.Close()
}
