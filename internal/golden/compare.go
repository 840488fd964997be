// Package golden compares captured output against golden files.
//
// Comparison is exact: no trailing-whitespace or line-ending normalisation is
// applied in any stage.
package golden

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// Verdict is the outcome of one comparison.
type Verdict struct {
	Pass bool
	// Diff is a unified diff from expected to actual, empty on pass.
	Diff string
}

// Compare returns a passing verdict iff actual and expected are byte-identical.
func Compare(actual, expected []byte) Verdict {
	if bytes.Equal(actual, expected) {
		return Verdict{Pass: true}
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(expected),
		B:        splitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil || diff == "" {
		diff = fmt.Sprintf("--- expected (%d bytes)\n+++ actual (%d bytes)\noutputs differ\n", len(expected), len(actual))
	}
	return Verdict{Diff: diff}
}

// CompareFile compares actual against the golden file at path.
//
// A mismatch is returned as *harness.ComparisonMismatchError carrying the diff.
func CompareFile(actual []byte, path string) error {
	expected, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if verdict := Compare(actual, expected); !verdict.Pass {
		return &harness.ComparisonMismatchError{Diff: verdict.Diff}
	}
	return nil
}

// noNewline marks a final line that lacks its line terminator, as diff(1) does.
const noNewline = "\\ No newline at end of file\n"

// splitLines keeps every line terminator as it is. An unterminated final line
// is followed by the noNewline marker so it never equals a terminated one.
func splitLines(data []byte) []string {
	lines := strings.SplitAfter(string(data), "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n" + noNewline
	}
	return lines
}
