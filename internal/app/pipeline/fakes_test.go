package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

type fakeRuntime struct {
	mu       sync.Mutex
	builds   []harness.BuildRequest
	execs    []harness.ExecRequest
	buildErr map[string]error
	run      func(name string, req harness.ExecRequest) (*harness.ExecutionResult, error)
	closed   bool
}

func (f *fakeRuntime) Build(ctx context.Context, req harness.BuildRequest) (*harness.BuildResult, error) {
	f.mu.Lock()
	f.builds = append(f.builds, req)
	err := f.buildErr[req.Name]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &harness.BuildResult{Executable: req.Output, Sources: []string{"main.cpp"}}, nil
}

func (f *fakeRuntime) Execute(ctx context.Context, req harness.ExecRequest) (*harness.ExecutionResult, error) {
	f.mu.Lock()
	f.execs = append(f.execs, req)
	run := f.run
	f.mu.Unlock()

	if run == nil {
		return &harness.ExecutionResult{}, nil
	}
	return run(filepath.Base(req.Executable), req)
}

func (f *fakeRuntime) Close() error {
	f.closed = true
	return nil
}

func (f *fakeRuntime) buildNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.builds))
	for _, b := range f.builds {
		names = append(names, b.Name)
	}
	return names
}

// fakeSimulator runs programs instantly: a program containing LOOP never
// finishes, any other program leaves readouts[program] in the register.
type fakeSimulator struct {
	opened   int
	closed   int
	loads    []string
	stops    int
	readouts map[string]string
	loadErr  map[int]error

	current string
}

func (f *fakeSimulator) Open(context.Context) error {
	f.opened++
	return nil
}

func (f *fakeSimulator) Load(_ context.Context, payload []byte) error {
	var decoded struct {
		Program string `json:"program"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	f.loads = append(f.loads, decoded.Program)
	if err := f.loadErr[len(f.loads)]; err != nil {
		return err
	}
	f.current = decoded.Program
	return nil
}

func (f *fakeSimulator) Start(context.Context) error { return nil }

func (f *fakeSimulator) IsBusy(context.Context) (bool, error) {
	return strings.Contains(f.current, "LOOP"), nil
}

func (f *fakeSimulator) Stop(context.Context) error {
	f.stops++
	f.current = ""
	return nil
}

func (f *fakeSimulator) ReadRegister(context.Context, string) (string, error) {
	return f.readouts[f.current], nil
}

func (f *fakeSimulator) Close() error {
	f.closed++
	return nil
}

type recordingReporter struct {
	results   []harness.CaseResult
	summaries []harness.RunSummary
	steps     []string
}

func (r *recordingReporter) StageStarted(harness.RunContext, harness.Stage, int) {}

func (r *recordingReporter) Step(format string, args ...any) {
	r.steps = append(r.steps, format)
}

func (r *recordingReporter) CaseFinished(result harness.CaseResult) {
	r.results = append(r.results, result)
}

func (r *recordingReporter) StageFinished(summary harness.RunSummary) {
	r.summaries = append(r.summaries, summary)
}

func (r *recordingReporter) statuses() map[string]harness.CaseStatus {
	out := make(map[string]harness.CaseStatus, len(r.results))
	for _, res := range r.results {
		out[res.Case] = res.Status
	}
	return out
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func newRunContext(t *testing.T, fixtures string) harness.RunContext {
	t.Helper()

	rc := harness.NewRunContext()
	rc.SourceRoot = t.TempDir()
	rc.FixtureRoot = fixtures
	rc.WorkDir = t.TempDir()
	return rc
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}
