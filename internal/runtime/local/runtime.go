// Package local builds and runs stage implementations as host processes.
package local

import (
	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

const defaultCompiler = "g++"

// Config describes the host toolchain.
type Config struct {
	// Compiler is the native compiler driver. Defaults to g++.
	Compiler string
	// SourcePattern selects the sources compiled from a directory. Defaults to *.cpp.
	SourcePattern string
}

// Runtime implements ports.Runtime with host processes.
type Runtime struct {
	compiler string
	pattern  string
}

var _ ports.Runtime = (*Runtime)(nil)

// New constructs a Runtime, applying defaults to cfg.
func New(cfg Config) *Runtime {
	if cfg.Compiler == "" {
		cfg.Compiler = defaultCompiler
	}
	if cfg.SourcePattern == "" {
		cfg.SourcePattern = "*.cpp"
	}
	return &Runtime{compiler: cfg.Compiler, pattern: cfg.SourcePattern}
}

// Close is a no-op; host processes hold no shared resources.
func (r *Runtime) Close() error {
	return nil
}
