package ports

import (
	"context"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// NativeBuilder compiles a directory of native sources into one executable.
type NativeBuilder interface {
	Build(ctx context.Context, req harness.BuildRequest) (*harness.BuildResult, error)
}

// ProcessExecutor runs an executable with stdin bound and stdout captured.
type ProcessExecutor interface {
	Execute(ctx context.Context, req harness.ExecRequest) (*harness.ExecutionResult, error)
}

// Runtime bundles a builder and an executor sharing the same environment.
type Runtime interface {
	NativeBuilder
	ProcessExecutor
	Close() error
}
