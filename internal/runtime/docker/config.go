package docker

import "github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"

const (
	defaultImage    = "gcc:13"
	defaultWorkdir  = "/workspace"
	defaultCompiler = "g++"
	defaultPattern  = "*.cpp"
)

// Config describes how to create a Docker-backed runtime.
type Config struct {
	// Image provides both the compiler and the libraries the built programs link against.
	Image   string
	Workdir string
	// Compiler is resolved inside Image. Defaults to g++.
	Compiler      string
	SourcePattern string
	DefaultLimits harness.RunLimits
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = defaultImage
	}
	if c.Workdir == "" {
		c.Workdir = defaultWorkdir
	}
	if c.Compiler == "" {
		c.Compiler = defaultCompiler
	}
	if c.SourcePattern == "" {
		c.SourcePattern = defaultPattern
	}
	return c
}
