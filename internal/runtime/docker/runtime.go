// Package docker builds and runs stage implementations inside containers.
package docker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/docker/docker/client"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/ports"
)

// Runtime implements ports.Runtime backed by Docker containers.
type Runtime struct {
	config Config
	client dockerClient
	engine *containerEngine

	pullOnce sync.Once
	pullErr  error
}

var _ ports.Runtime = (*Runtime)(nil)

// New constructs a Runtime using the supplied configuration.
func New(cfg Config) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}
	return newRuntimeWithClient(cli, cfg), nil
}

func newRuntimeWithClient(cli dockerClient, cfg Config) *Runtime {
	cfg = cfg.withDefaults()
	return &Runtime{
		config: cfg,
		client: cli,
		engine: newContainerEngine(cli, cfg.Image, cfg.Workdir, cfg.DefaultLimits),
	}
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("docker client: %w", err))
	}
	return errors.Join(errs...)
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	r.pullOnce.Do(func() {
		r.pullErr = r.engine.pullImage(ctx, r.config.Image)
	})
	return r.pullErr
}
