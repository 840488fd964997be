package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// stagedBase is the base name every staged fixture file is given.
const stagedBase = "test"

// stagedCase locates the copies of one case's fixtures in the scratch directory.
type stagedCase struct {
	dir   string
	files map[harness.FixtureRole]string
}

func (s stagedCase) read(role harness.FixtureRole) ([]byte, error) {
	path, ok := s.files[role]
	if !ok {
		return nil, fmt.Errorf("no %s fixture staged", role)
	}
	return os.ReadFile(path)
}

// stageCase copies every fixture the profile needs into dir as test<ext>.
// A missing or unreadable fixture is a *harness.StagingError.
func stageCase(dir string, tc harness.TestCase, profile harness.Profile) (stagedCase, error) {
	staged := stagedCase{dir: dir, files: make(map[harness.FixtureRole]string, len(profile.Extensions))}

	roles := make([]harness.FixtureRole, 0, len(profile.Extensions))
	for role := range profile.Extensions {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for _, role := range roles {
		src, ok := tc.Path(role)
		if !ok {
			return staged, &harness.StagingError{Case: tc.Name, Path: string(role), Err: fmt.Errorf("fixture file missing")}
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return staged, &harness.StagingError{Case: tc.Name, Path: src, Err: err}
		}
		dst := filepath.Join(dir, stagedBase+profile.Extensions[role])
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return staged, &harness.StagingError{Case: tc.Name, Path: dst, Err: err}
		}
		staged.files[role] = dst
	}
	return staged, nil
}

// resetDir empties dir, creating it when absent, and verifies nothing is left.
func resetDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	left, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(left) > 0 {
		return fmt.Errorf("%d entries left after cleanup", len(left))
	}
	return nil
}
