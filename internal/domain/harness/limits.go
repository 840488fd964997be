package harness

import "time"

// RunLimits describes optional resource boundaries for a single build or execution.
//
// A zero value RunLimits imposes no additional restrictions.
type RunLimits struct {
	// TimeLimit caps how long the process is allowed to run. Zero means no limit.
	TimeLimit time.Duration
	// MemoryLimitBytes caps the memory usage in bytes. Only container runtimes honour it.
	MemoryLimitBytes int64
}
