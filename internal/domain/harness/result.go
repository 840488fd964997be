package harness

import "time"

// CaseStatus is the outcome of a single case.
type CaseStatus string

const (
	StatusPassed CaseStatus = "PASS"
	StatusFailed CaseStatus = "FAIL"
	// StatusNotRun marks cases skipped because a fatal error aborted the stage.
	StatusNotRun CaseStatus = "NOT RUN"
)

// CaseResult captures the outcome of one TestCase.
type CaseResult struct {
	Case     string
	Index    int
	Status   CaseStatus
	Err      error
	Detail   string
	Duration time.Duration
}

// RunSummary tallies a stage run. Every case that did not pass, including those
// skipped after a fatal error, appears in Failed in discovery order.
type RunSummary struct {
	RunID  string
	Stage  Stage
	Total  int
	Passed int
	Failed []string
	Fatal  error
}

// Record adds one case outcome to the summary.
func (s *RunSummary) Record(result CaseResult) {
	if result.Status == StatusPassed {
		s.Passed++
		return
	}
	s.Failed = append(s.Failed, result.Case)
}

// OK reports whether every case passed and no fatal error occurred.
func (s RunSummary) OK() bool {
	return s.Fatal == nil && len(s.Failed) == 0 && s.Passed == s.Total
}
