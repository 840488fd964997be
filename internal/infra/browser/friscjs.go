// Package browser drives the FRISCjs web simulator through a Chrome session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

// DefaultURL is the public FRISCjs deployment.
const DefaultURL = "https://balrog.zemris.fer.hr/friscjs"

const (
	defaultOpTimeout = 15 * time.Second
	settleDelay      = 200 * time.Millisecond

	loadSaveLink   = `//a[normalize-space(text())="Load/Save"]`
	importText     = "#frisc-cfg-import-text"
	importButton   = "#frisc-cfg-import"
	loadButton     = "#frisc-load"
	executeButton  = "#frisc-execute"
	stopButton     = "#frisc-stop"
	registerValue  = ".cpu-reg-value"
	busyExpression = `document.querySelector("#frisc-load").disabled`
)

// Config selects the simulator page and how Chrome is obtained.
type Config struct {
	URL string
	// Headless hides the browser window of a locally started Chrome.
	Headless bool
	// ExecPath overrides the Chrome binary. Empty uses the default lookup.
	ExecPath string
	// RemoteURL attaches to an already running Chrome (its DevTools websocket
	// URL) instead of starting one.
	RemoteURL string
	// OpTimeout bounds every single browser operation.
	OpTimeout time.Duration
}

// FRISCjs implements ports.RemoteExecutionBackend with chromedp.
type FRISCjs struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc
}

var _ ports.RemoteExecutionBackend = (*FRISCjs)(nil)

// NewFRISCjs returns an unopened backend.
func NewFRISCjs(cfg Config) *FRISCjs {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &FRISCjs{cfg: cfg}
}

// Open starts or attaches to Chrome and loads the simulator page.
func (f *FRISCjs) Open(ctx context.Context) error {
	if f.ctx != nil {
		return nil
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if f.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), f.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", f.cfg.Headless),
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-running-insecure-content", true),
		)
		if f.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	f.ctx = browserCtx
	f.cancel = func() {
		cancelBrowser()
		cancelAlloc()
	}

	// The first Run starts the browser and binds it to browserCtx, so it
	// must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		f.teardown()
		return fmt.Errorf("start browser: %w", err)
	}

	err := f.run(ctx, "open",
		chromedp.Navigate(f.cfg.URL),
		chromedp.WaitReady(loadButton, chromedp.ByQuery),
	)
	if err != nil {
		f.teardown()
		return err
	}
	return nil
}

// Load imports payload through the Load/Save panel and loads it into the CPU.
func (f *FRISCjs) Load(ctx context.Context, payload []byte) error {
	var notified bool
	return f.run(ctx, "load",
		chromedp.Click(loadSaveLink, chromedp.BySearch),
		chromedp.Sleep(settleDelay),
		chromedp.WaitVisible(importText, chromedp.ByQuery),
		chromedp.SetValue(importText, string(payload), chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			el.dispatchEvent(new Event("input", {bubbles: true}));
			el.dispatchEvent(new Event("change", {bubbles: true}));
			return true;
		})()`, importText), &notified),
		chromedp.Click(importButton, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Click(loadButton, chromedp.ByQuery),
	)
}

// Start presses the execute control.
func (f *FRISCjs) Start(ctx context.Context) error {
	return f.run(ctx, "start", chromedp.Click(executeButton, chromedp.ByQuery))
}

// IsBusy reports whether the load control is still disabled by a running program.
func (f *FRISCjs) IsBusy(ctx context.Context) (bool, error) {
	var busy bool
	if err := f.run(ctx, "poll", chromedp.Evaluate(busyExpression, &busy)); err != nil {
		return false, err
	}
	return busy, nil
}

// Stop presses the stop control.
func (f *FRISCjs) Stop(ctx context.Context) error {
	return f.run(ctx, "stop", chromedp.Click(stopButton, chromedp.ByQuery))
}

// ReadRegister returns the raw hexadecimal text of the named register.
func (f *FRISCjs) ReadRegister(ctx context.Context, name string) (string, error) {
	var text string
	selector := registerSelector(name)
	if err := f.run(ctx, "read register", chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Close shuts the browser down.
func (f *FRISCjs) Close() error {
	f.teardown()
	return nil
}

func (f *FRISCjs) teardown() {
	if f.cancel != nil {
		f.cancel()
	}
	f.ctx = nil
	f.cancel = nil
}

// run executes actions on the browser within the per-operation timeout and
// the caller's ctx. Failures after the browser itself went away are session errors.
func (f *FRISCjs) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if f.ctx == nil {
		return &harness.SimulatorSessionError{Op: op, Err: errors.New("browser not started")}
	}
	browserCtx := f.ctx

	opCtx, cancel := context.WithTimeout(browserCtx, f.cfg.OpTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if browserCtx.Err() != nil {
		return &harness.SimulatorSessionError{Op: op, Err: err}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: no response within %s", op, f.cfg.OpTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func registerSelector(name string) string {
	return "#cpu_" + strings.ToLower(name) + " " + registerValue
}
