package harness

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// RunContext carries everything a stage run needs explicitly, in place of
// shared working directories and ambient flags.
type RunContext struct {
	ID uuid.UUID
	// SourceRoot holds the native sources of the stage implementation.
	SourceRoot string
	// FixtureRoot holds the fixture bundles.
	FixtureRoot string
	// WorkDir is the scratch root. Binaries go to bin/, staged cases to case/.
	WorkDir string

	BuildLimits RunLimits
	ExecLimits  RunLimits

	SimMaxWait      time.Duration
	SimPollInterval time.Duration

	// Offset skips the first discovered cases.
	Offset        int
	CaptureStderr bool
	Verbose       bool
}

// NewRunContext returns a context with a fresh run identity.
func NewRunContext() RunContext {
	return RunContext{ID: uuid.New()}
}

// BinDir is where build outputs are placed for the lifetime of the run.
func (rc RunContext) BinDir() string {
	return filepath.Join(rc.WorkDir, "bin")
}

// CaseDir is the scratch directory reused by every case.
func (rc RunContext) CaseDir() string {
	return filepath.Join(rc.WorkDir, "case")
}

// RunRequest asks for one stage run. Empty fields fall back to the base RunContext.
type RunRequest struct {
	ID          string
	Stage       Stage
	SourceRoot  string
	FixtureRoot string
	Offset      int
}
