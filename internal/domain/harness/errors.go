package harness

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrFixtureDiscovery   = errors.New("fixture discovery failed")
	ErrStaging            = errors.New("staging failed")
	ErrBuildFailure       = errors.New("build failed")
	ErrExecutionTimeout   = errors.New("execution timed out")
	ErrComparisonMismatch = errors.New("output mismatch")
	ErrSimulatorStall     = errors.New("simulator stalled")
	ErrSimulatorSession   = errors.New("simulator session lost")
)

// FixtureDiscoveryError aborts the whole run.
type FixtureDiscoveryError struct {
	Root   string
	Reason string
	Err    error
}

func (e *FixtureDiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discover fixtures in %s: %s: %v", e.Root, e.Reason, e.Err)
	}
	return fmt.Sprintf("discover fixtures in %s: %s", e.Root, e.Reason)
}

func (e *FixtureDiscoveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFixtureDiscovery, e.Err}
	}
	return []error{ErrFixtureDiscovery}
}

// StagingError reports a fixture file that could not be staged or a scratch
// directory that could not be cleaned. It aborts the stage run.
type StagingError struct {
	Case string
	Path string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Case, e.Path, e.Err)
}

func (e *StagingError) Unwrap() []error { return []error{ErrStaging, e.Err} }

// BuildFailureError carries the compiler diagnostics verbatim.
type BuildFailureError struct {
	Step        string
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *BuildFailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("build %s: compiler exited with status %d", e.Step, e.ExitCode)
}

func (e *BuildFailureError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBuildFailure, e.Err}
	}
	return []error{ErrBuildFailure}
}

// ExecutionTimeoutError is returned when a process outlives its time limit and was killed.
type ExecutionTimeoutError struct {
	Executable string
	Limit      time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("%s did not finish within %s", e.Executable, e.Limit)
}

func (e *ExecutionTimeoutError) Unwrap() error { return ErrExecutionTimeout }

// ComparisonMismatchError keeps the diff text for diagnostic printing.
type ComparisonMismatchError struct {
	Diff string
}

func (e *ComparisonMismatchError) Error() string { return "output differs from golden file" }

func (e *ComparisonMismatchError) Unwrap() error { return ErrComparisonMismatch }

// SimulatorStallError reports a simulated run that never cleared its busy indicator.
type SimulatorStallError struct {
	Waited   time.Duration
	Attempts int
}

func (e *SimulatorStallError) Error() string {
	return fmt.Sprintf("program still running after %s (%d polls), stopped", e.Waited, e.Attempts)
}

func (e *SimulatorStallError) Unwrap() error { return ErrSimulatorStall }

// SimulatorSessionError reports a session that can no longer be used.
type SimulatorSessionError struct {
	Op  string
	Err error
}

func (e *SimulatorSessionError) Error() string {
	return fmt.Sprintf("simulator %s: %v", e.Op, e.Err)
}

func (e *SimulatorSessionError) Unwrap() []error { return []error{ErrSimulatorSession, e.Err} }

// IsFatal reports whether err makes every remaining case of the run meaningless.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFixtureDiscovery) ||
		errors.Is(err, ErrStaging) ||
		errors.Is(err, ErrBuildFailure) ||
		errors.Is(err, ErrSimulatorSession)
}
