package ports

import (
	"context"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// SummaryPublisher emits the pass/fail tally of a finished stage run.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary harness.RunSummary) error
}
