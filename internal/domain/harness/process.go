package harness

import "time"

// BuildRequest asks a NativeBuilder to compile every source in SourceDir into Output.
type BuildRequest struct {
	Name      string
	SourceDir string
	Output    string
	Flags     []string
	Limits    RunLimits
}

// BuildResult captures a successful compilation. Failed builds surface as *BuildFailureError.
type BuildResult struct {
	Executable  string
	Sources     []string
	Diagnostics string
	Duration    time.Duration
}

// ExecRequest runs Executable inside Dir with Stdin bound to its standard input.
type ExecRequest struct {
	Executable string
	Stdin      []byte
	Dir        string
	Limits     RunLimits
	// CaptureStderr keeps stderr in the result instead of discarding it.
	CaptureStderr bool
}

// ExecutionResult captures the outcome of one process execution.
type ExecutionResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}
