// Package simulator drives a remote CPU simulator through one session per run.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/poll"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/register"
)

// State is the driver's position in the session lifecycle.
type State int

const (
	Disconnected State = iota
	Connected
	Idle
	Loaded
	Running
	Finished
	Stalled
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

const (
	defaultMaxWait  = 10 * time.Second
	defaultInterval = 100 * time.Millisecond
	defaultRegister = "R6"
	stopGrace       = 5 * time.Second
)

var errNotConnected = errors.New("no open session")

// Config tunes stall detection and the register that holds the result.
type Config struct {
	MaxWait      time.Duration
	PollInterval time.Duration
	Register     string
	// Logf receives step-level progress lines. Nil disables them.
	Logf func(format string, args ...any)
}

// Outcome is a finished simulated run.
type Outcome struct {
	Register register.Value
	// Polls counts busy checks after the first one.
	Polls   int
	Elapsed time.Duration
}

// Driver owns the single simulator session of a run. It is not safe for
// concurrent use.
type Driver struct {
	backend  ports.RemoteExecutionBackend
	policy   poll.Policy
	register string
	logf     func(format string, args ...any)
	state    State
}

// NewDriver constructs a Driver in the Disconnected state.
func NewDriver(backend ports.RemoteExecutionBackend, cfg Config) *Driver {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultInterval
	}
	if cfg.Register == "" {
		cfg.Register = defaultRegister
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Driver{
		backend:  backend,
		policy:   poll.FromBudget(cfg.MaxWait, cfg.PollInterval),
		register: cfg.Register,
		logf:     logf,
		state:    Disconnected,
	}
}

// State reports the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Open establishes the session. Calling Open on a connected driver is a no-op.
func (d *Driver) Open(ctx context.Context) error {
	if d.state != Disconnected {
		return nil
	}
	if err := d.backend.Open(ctx); err != nil {
		return &harness.SimulatorSessionError{Op: "open", Err: err}
	}
	d.state = Connected
	d.logf("simulator session opened")
	d.state = Idle
	return nil
}

// Execute loads program, runs it to completion and decodes the result register.
//
// A run that stays busy past the polling budget is stopped exactly once and
// reported as *harness.SimulatorStallError; the driver is Idle again afterwards.
// Errors wrapping harness.ErrSimulatorSession leave the driver Disconnected.
func (d *Driver) Execute(ctx context.Context, program string) (*Outcome, error) {
	if d.state == Disconnected {
		return nil, &harness.SimulatorSessionError{Op: "execute", Err: errNotConnected}
	}
	d.state = Idle

	payload, err := NewPayload(program).Encode()
	if err != nil {
		return nil, err
	}

	if err := d.backend.Load(ctx, payload); err != nil {
		return nil, d.fail("load", err)
	}
	d.state = Loaded
	d.logf("simulator program loaded (%d bytes)", len(payload))

	if err := d.backend.Start(ctx); err != nil {
		return nil, d.fail("start", err)
	}
	d.state = Running
	d.logf("simulator running")

	outcome, err := d.policy.Wait(ctx, func(ctx context.Context) (bool, error) {
		busy, err := d.backend.IsBusy(ctx)
		if err != nil {
			return false, err
		}
		return !busy, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			d.stop(context.WithoutCancel(ctx))
			d.state = Idle
			return nil, ctx.Err()
		}
		return nil, d.fail("poll", err)
	}

	if outcome.Result == poll.TimedOut {
		d.state = Stalled
		d.logf("simulator still busy after %s, stopping", outcome.Elapsed)
		if err := d.stop(context.WithoutCancel(ctx)); err != nil {
			return nil, d.fail("stop", err)
		}
		d.state = Idle
		return nil, &harness.SimulatorStallError{Waited: outcome.Elapsed, Attempts: outcome.Attempts}
	}

	d.state = Finished
	d.logf("simulator finished after %s (%d polls)", outcome.Elapsed, outcome.Attempts)

	raw, err := d.backend.ReadRegister(ctx, d.register)
	if err != nil {
		return nil, d.fail("read register", err)
	}
	d.state = Idle

	value, err := register.Decode(raw)
	if err != nil {
		return nil, err
	}

	return &Outcome{Register: value, Polls: outcome.Attempts, Elapsed: outcome.Elapsed}, nil
}

// Close tears the session down. The driver is Disconnected afterwards.
func (d *Driver) Close() error {
	wasOpen := d.state != Disconnected
	d.state = Disconnected
	if err := d.backend.Close(); err != nil {
		return fmt.Errorf("close simulator session: %w", err)
	}
	if wasOpen {
		d.logf("simulator session closed")
	}
	return nil
}

func (d *Driver) stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	return d.backend.Stop(stopCtx)
}

// fail maps a backend error onto the driver state. Session errors disconnect
// the driver; anything else is isolated to the current case.
func (d *Driver) fail(op string, err error) error {
	if errors.Is(err, harness.ErrSimulatorSession) {
		d.state = Disconnected
		var sessionErr *harness.SimulatorSessionError
		if errors.As(err, &sessionErr) {
			return err
		}
		return &harness.SimulatorSessionError{Op: op, Err: err}
	}
	d.state = Idle
	return fmt.Errorf("simulator %s: %w", op, err)
}
