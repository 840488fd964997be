package local

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

const fakeCompiler = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then
		out="$2"
		shift
	fi
	shift
done
echo "warning: compiled into $out" >&2
printf '#!/bin/sh\necho built\n' > "$out"
chmod +x "$out"
`

const brokenCompiler = `#!/bin/sh
echo "main.cpp:1:1: error: expected ';' before '}' token" >&2
exit 1
`

func TestBuildCompilesAllSources(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "b.cpp"), "", 0o644)
	writeFile(t, filepath.Join(srcDir, "a.cpp"), "", 0o644)
	writeFile(t, filepath.Join(srcDir, "a.hpp"), "", 0o644)
	compiler := writeScript(t, "fakecc", fakeCompiler)

	rt := New(Config{Compiler: compiler})
	output := filepath.Join(t.TempDir(), "bin", "analizator")
	result, err := rt.Build(context.Background(), harness.BuildRequest{
		Name:      "analizator",
		SourceDir: srcDir,
		Output:    output,
		Flags:     []string{"-std=c++17"},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if result.Executable != output {
		t.Fatalf("expected executable %q, got %q", output, result.Executable)
	}
	if strings.Join(result.Sources, ",") != "a.cpp,b.cpp" {
		t.Fatalf("unexpected sources %v", result.Sources)
	}
	if !strings.Contains(result.Diagnostics, "compiled into "+output) {
		t.Fatalf("expected diagnostics to be captured, got %q", result.Diagnostics)
	}
}

func TestBuildFailureCarriesDiagnostics(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "main.cpp"), "int main(){", 0o644)
	compiler := writeScript(t, "brokencc", brokenCompiler)

	rt := New(Config{Compiler: compiler})
	_, err := rt.Build(context.Background(), harness.BuildRequest{
		Name:      "semAnalizator",
		SourceDir: srcDir,
		Output:    filepath.Join(t.TempDir(), "semAnalizator"),
	})

	var failure *harness.BuildFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("expected BuildFailureError, got %v", err)
	}
	if failure.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", failure.ExitCode)
	}
	if !strings.Contains(failure.Diagnostics, "expected ';'") {
		t.Fatalf("expected verbatim diagnostics, got %q", failure.Diagnostics)
	}
}

func TestBuildWithoutSources(t *testing.T) {
	rt := New(Config{Compiler: writeScript(t, "fakecc", fakeCompiler)})
	_, err := rt.Build(context.Background(), harness.BuildRequest{
		Name:      "generator",
		SourceDir: t.TempDir(),
		Output:    filepath.Join(t.TempDir(), "generator"),
	})
	if !errors.Is(err, harness.ErrBuildFailure) {
		t.Fatalf("expected build failure, got %v", err)
	}
}

func TestBuildOutputDirectoryErrorIsBuildFailure(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "main.cpp"), "", 0o644)
	blocker := filepath.Join(t.TempDir(), "bin")
	writeFile(t, blocker, "not a directory", 0o644)

	rt := New(Config{Compiler: writeScript(t, "fakecc", fakeCompiler)})
	_, err := rt.Build(context.Background(), harness.BuildRequest{
		Name:      "analizator",
		SourceDir: srcDir,
		Output:    filepath.Join(blocker, "analizator"),
	})

	var failure *harness.BuildFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("expected BuildFailureError, got %v", err)
	}
	if !harness.IsFatal(err) || failure.Step != "analizator" {
		t.Fatalf("unexpected failure %+v", failure)
	}
}

func TestExecuteBindsStdinAndCapturesStdout(t *testing.T) {
	exe := writeScript(t, "echo", "#!/bin/sh\ncat\n")
	rt := New(Config{})

	result, err := rt.Execute(context.Background(), harness.ExecRequest{
		Executable: exe,
		Stdin:      []byte("2 3\n"),
		Dir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(result.Stdout) != "2 3\n" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Fatalf("unexpected exit code %d", result.ExitCode)
	}
}

func TestExecuteReportsCrashAsResult(t *testing.T) {
	exe := writeScript(t, "crash", "#!/bin/sh\necho partial\necho boom >&2\nexit 3\n")
	rt := New(Config{})

	result, err := rt.Execute(context.Background(), harness.ExecRequest{Executable: exe, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if string(result.Stdout) != "partial\n" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
	if len(result.Stderr) != 0 {
		t.Fatalf("expected stderr to be discarded, got %q", result.Stderr)
	}

	result, err = rt.Execute(context.Background(), harness.ExecRequest{Executable: exe, Dir: t.TempDir(), CaptureStderr: true})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(result.Stderr) != "boom\n" {
		t.Fatalf("expected captured stderr, got %q", result.Stderr)
	}
}

func TestExecuteRunsInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, "writer", "#!/bin/sh\necho program > a.frisc\n")
	rt := New(Config{})

	if _, err := rt.Execute(context.Background(), harness.ExecRequest{Executable: exe, Dir: dir}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.frisc"))
	if err != nil {
		t.Fatalf("expected program file in working directory: %v", err)
	}
	if string(data) != "program\n" {
		t.Fatalf("unexpected program file contents %q", data)
	}
}

func TestExecuteTimeout(t *testing.T) {
	exe := writeScript(t, "stuck", "#!/bin/sh\nexec sleep 5\n")
	rt := New(Config{})

	start := time.Now()
	result, err := rt.Execute(context.Background(), harness.ExecRequest{
		Executable: exe,
		Dir:        t.TempDir(),
		Limits:     harness.RunLimits{TimeLimit: 100 * time.Millisecond},
	})

	var timeout *harness.ExecutionTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ExecutionTimeoutError, got %v", err)
	}
	if timeout.Limit != 100*time.Millisecond {
		t.Fatalf("unexpected limit %v", timeout.Limit)
	}
	if result == nil || result.ExitCode != -1 {
		t.Fatalf("expected partial result with exit code -1, got %#v", result)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("executor blocked for %v", elapsed)
	}
}

func TestBuildAndExecuteWithHostCompiler(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping host compiler test in short mode")
	}
	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ not available")
	}

	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "main.cpp"), `#include <iostream>
int main() {
	long a, b;
	std::cin >> a >> b;
	std::cout << a + b << std::endl;
	return 0;
}
`, 0o644)

	rt := New(Config{})
	build, err := rt.Build(context.Background(), harness.BuildRequest{
		Name:      "adder",
		SourceDir: srcDir,
		Output:    filepath.Join(t.TempDir(), "adder"),
		Flags:     harness.DefaultCompilerFlags,
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	result, err := rt.Execute(context.Background(), harness.ExecRequest{
		Executable: build.Executable,
		Stdin:      []byte("2 3"),
		Dir:        t.TempDir(),
		Limits:     harness.RunLimits{TimeLimit: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(result.Stdout) != "5\n" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
}

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeFile(t, path, content, 0o755)
	return path
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
