package harness

import (
	"fmt"
	"sort"
	"strings"
)

// Stage identifies one phase of the compiler pipeline under test.
type Stage string

const (
	StageLexical  Stage = "lexical"
	StageSyntax   Stage = "syntax"
	StageSemantic Stage = "semantic"
	StageCodegen  Stage = "codegen"
)

// CheckKind selects how a case's output is judged.
type CheckKind string

const (
	// CheckGolden compares captured stdout against the golden file byte for byte.
	CheckGolden CheckKind = "golden"
	// CheckRegister runs the produced program on the simulator and compares a register.
	CheckRegister CheckKind = "register"
)

// DefaultCompilerFlags mirrors the invocation used by the lab scripts.
var DefaultCompilerFlags = []string{"-std=c++17", "-O2"}

// BuildStep describes one native component compiled from a source directory.
type BuildStep struct {
	// Name is the executable name placed in the run's bin directory.
	Name string
	// SourceDir is relative to the stage source root. Empty means the root itself.
	SourceDir string
	// Flags are passed to the compiler after the source files.
	Flags []string
}

// Profile is the stage-specific wiring of fixtures, build steps and checks.
type Profile struct {
	Stage Stage
	// Extensions maps each required fixture role to its file extension.
	Extensions map[FixtureRole]string
	// Generator is built once and run per case with the source fixture on stdin.
	// Its output rewrites the analyzer sources, so the analyzer is rebuilt per case.
	Generator *BuildStep
	Analyzer  BuildStep
	Check     CheckKind
	// ProgramFile is the file the analyzer writes its program to, relative to the
	// case directory. Stdout is used when it is empty or not produced.
	ProgramFile string
	// Register is read from the simulator when Check is CheckRegister.
	Register string
}

// RebuildPerCase reports whether the analyzer sources change per fixture.
func (p Profile) RebuildPerCase() bool {
	return p.Generator != nil
}

// Validate reports configuration mistakes before any case runs.
func (p Profile) Validate() error {
	if p.Stage == "" {
		return fmt.Errorf("profile missing stage")
	}
	if p.Analyzer.Name == "" {
		return fmt.Errorf("profile %s: analyzer missing executable name", p.Stage)
	}
	if _, ok := p.Extensions[RoleInput]; !ok {
		return fmt.Errorf("profile %s: input extension required", p.Stage)
	}
	if _, ok := p.Extensions[RoleExpected]; !ok {
		return fmt.Errorf("profile %s: expected extension required", p.Stage)
	}
	if p.Generator != nil {
		if p.Generator.Name == "" {
			return fmt.Errorf("profile %s: generator missing executable name", p.Stage)
		}
		if _, ok := p.Extensions[RoleSource]; !ok {
			return fmt.Errorf("profile %s: generator requires a source extension", p.Stage)
		}
	}
	switch p.Check {
	case CheckGolden:
	case CheckRegister:
		if p.Register == "" {
			return fmt.Errorf("profile %s: register check needs a register name", p.Stage)
		}
	default:
		return fmt.Errorf("profile %s: unknown check %q", p.Stage, p.Check)
	}
	return nil
}

// DefaultProfiles returns the stage profiles used by the lab assignments.
func DefaultProfiles() map[Stage]Profile {
	generatorStage := func(stage Stage, sourceExt string) Profile {
		return Profile{
			Stage: stage,
			Extensions: map[FixtureRole]string{
				RoleSource:   sourceExt,
				RoleInput:    ".in",
				RoleExpected: ".out",
			},
			Generator: &BuildStep{Name: "generator", Flags: DefaultCompilerFlags},
			Analyzer:  BuildStep{Name: "analizator", SourceDir: "analizator", Flags: DefaultCompilerFlags},
			Check:     CheckGolden,
		}
	}

	return map[Stage]Profile{
		StageLexical: generatorStage(StageLexical, ".lan"),
		StageSyntax:  generatorStage(StageSyntax, ".san"),
		StageSemantic: {
			Stage: StageSemantic,
			Extensions: map[FixtureRole]string{
				RoleInput:    ".in",
				RoleExpected: ".out",
			},
			Analyzer: BuildStep{Name: "semAnalizator", Flags: DefaultCompilerFlags},
			Check:    CheckGolden,
		},
		StageCodegen: {
			Stage: StageCodegen,
			Extensions: map[FixtureRole]string{
				RoleInput:    ".in",
				RoleExpected: ".out",
			},
			Analyzer:    BuildStep{Name: "semAnalizator", Flags: DefaultCompilerFlags},
			Check:       CheckRegister,
			ProgramFile: "a.frisc",
			Register:    "R6",
		},
	}
}

// ParseStages splits a comma separated stage list, rejecting unknown names.
func ParseStages(raw string) ([]Stage, error) {
	known := DefaultProfiles()
	var stages []Stage
	for _, field := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(field))
		if name == "" {
			continue
		}
		stage := Stage(name)
		if _, ok := known[stage]; !ok {
			return nil, fmt.Errorf("unknown stage %q (known: %s)", name, strings.Join(stageNames(known), ", "))
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stage selected")
	}
	return stages, nil
}

func stageNames(profiles map[Stage]Profile) []string {
	names := make([]string, 0, len(profiles))
	for stage := range profiles {
		names = append(names, string(stage))
	}
	sort.Strings(names)
	return names
}
