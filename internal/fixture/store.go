// Package fixture enumerates golden test bundles from a fixture tree.
//
// Two layouts are recognised and may be mixed under one root:
//
//	<root>/<case>/test.in, <root>/<case>/test.out, ...   (directory per case)
//	<root>/<case>.in, <root>/<case>.out, ...             (flat, shared base name)
//
// Entries whose name starts with a dot (.DS_Store and friends) are ignored.
package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

// Discover returns the fixture bundles under root sorted by name.
//
// A bundle is kept as soon as one of its files matches a known extension; a
// bundle missing a required role is reported later, when the case is staged.
func Discover(root string, extensions map[harness.FixtureRole]string) ([]harness.TestCase, error) {
	if len(extensions) == 0 {
		return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "no fixture extensions configured"}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "root not accessible", Err: err}
	}
	if !info.IsDir() {
		return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "root is not a directory"}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "read root", Err: err}
	}

	exts := newExtensionSet(extensions)
	bundles := make(map[string]map[harness.FixtureRole]string)
	fromDir := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) {
			continue
		}

		if entry.IsDir() {
			files, err := scanCaseDir(filepath.Join(root, name), exts)
			if err != nil {
				return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "read case " + name, Err: err}
			}
			if len(files) == 0 {
				continue
			}
			if _, exists := bundles[name]; exists {
				return nil, &harness.FixtureDiscoveryError{Root: root, Reason: fmt.Sprintf("case %q defined both as directory and flat files", name)}
			}
			bundles[name] = files
			fromDir[name] = true
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}
		base, role, ok := exts.match(name)
		if !ok {
			continue
		}
		if fromDir[base] {
			return nil, &harness.FixtureDiscoveryError{Root: root, Reason: fmt.Sprintf("case %q defined both as directory and flat files", base)}
		}
		if bundles[base] == nil {
			bundles[base] = make(map[harness.FixtureRole]string)
		}
		bundles[base][role] = filepath.Join(root, name)
	}

	if len(bundles) == 0 {
		return nil, &harness.FixtureDiscoveryError{Root: root, Reason: "no recognizable fixture bundles"}
	}

	names := make([]string, 0, len(bundles))
	for name := range bundles {
		names = append(names, name)
	}
	sort.Strings(names)

	cases := make([]harness.TestCase, 0, len(names))
	for _, name := range names {
		cases = append(cases, harness.TestCase{Name: name, Files: bundles[name]})
	}
	return cases, nil
}

// Missing lists the roles required by extensions that tc does not carry.
func Missing(tc harness.TestCase, extensions map[harness.FixtureRole]string) []harness.FixtureRole {
	var missing []harness.FixtureRole
	for role := range extensions {
		if _, ok := tc.Path(role); !ok {
			missing = append(missing, role)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func scanCaseDir(dir string, exts extensionSet) (map[harness.FixtureRole]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make(map[harness.FixtureRole]string)
	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) || !entry.Type().IsRegular() {
			continue
		}
		_, role, ok := exts.match(name)
		if !ok {
			continue
		}
		// ReadDir is sorted, so the first match per role wins deterministically.
		if _, taken := files[role]; !taken {
			files[role] = filepath.Join(dir, name)
		}
	}
	return files, nil
}

// extensionSet matches file names against the configured extensions,
// longest first, so a base name may itself contain dots.
type extensionSet struct {
	exts  []string
	roles map[string]harness.FixtureRole
}

func newExtensionSet(extensions map[harness.FixtureRole]string) extensionSet {
	set := extensionSet{roles: make(map[string]harness.FixtureRole, len(extensions))}
	for role, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set.roles[ext] = role
		set.exts = append(set.exts, ext)
	}
	sort.Slice(set.exts, func(i, j int) bool {
		if len(set.exts[i]) != len(set.exts[j]) {
			return len(set.exts[i]) > len(set.exts[j])
		}
		return set.exts[i] < set.exts[j]
	})
	return set
}

// match returns the base name and role of a fixture file name.
func (s extensionSet) match(name string) (base string, role harness.FixtureRole, ok bool) {
	for _, ext := range s.exts {
		if base, found := strings.CutSuffix(name, ext); found && base != "" {
			return base, s.roles[ext], true
		}
	}
	return "", "", false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
