package ports

import (
	"context"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// RunRequestSource yields stage-run requests until it returns io.EOF.
type RunRequestSource interface {
	NextRequest(ctx context.Context) (harness.RunRequest, error)
}
