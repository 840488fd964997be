// Package poll implements a bounded polling policy.
package poll

import (
	"context"
	"time"
)

// Result tags how a bounded wait ended.
type Result int

const (
	Finished Result = iota
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Finished:
		return "finished"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Policy polls a condition every Interval, giving up after MaxAttempts sleeps.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// FromBudget derives a policy whose attempts cover maxWait at the given interval.
func FromBudget(maxWait, interval time.Duration) Policy {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	attempts := int(maxWait / interval)
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Interval: interval, MaxAttempts: attempts}
}

// Budget is the longest time Wait sleeps before reporting TimedOut.
func (p Policy) Budget() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

// Outcome describes a finished wait.
type Outcome struct {
	Result   Result
	Attempts int
	Elapsed  time.Duration
}

// Wait calls done until it reports true, the attempt budget runs out, or ctx ends.
//
// The condition is checked before every sleep, so an already finished
// condition returns with zero attempts. Errors from done end the wait.
func (p Policy) Wait(ctx context.Context, done func(ctx context.Context) (bool, error)) (Outcome, error) {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		ok, err := done(ctx)
		if err != nil {
			return Outcome{Result: TimedOut, Attempts: attempt, Elapsed: time.Since(start)}, err
		}
		if ok {
			return Outcome{Result: Finished, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}
		if attempt >= p.MaxAttempts {
			return Outcome{Result: TimedOut, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Result: TimedOut, Attempts: attempt, Elapsed: time.Since(start)}, ctx.Err()
		}
	}
}
