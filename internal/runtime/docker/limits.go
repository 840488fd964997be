package docker

import "github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"

func normalizeLimits(l harness.RunLimits) harness.RunLimits {
	if l.TimeLimit < 0 {
		l.TimeLimit = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	return l
}
