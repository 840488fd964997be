package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	typesimage "github.com/docker/docker/api/types/image"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
)

type containerEngine struct {
	cli           dockerClient
	image         string
	workdir       string
	defaultLimits harness.RunLimits
}

// containerRun is the raw outcome of one container execution.
type containerRun struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
	OOMKilled bool
}

// runOptions configures a single container execution.
type runOptions struct {
	Command []string
	Files   []fileSpec
	Stdin   []byte
	// AttachStdin streams Stdin to the process and closes it afterwards.
	AttachStdin bool
	// SyncDir receives the container workdir after exit, when set.
	SyncDir string
	// SyncSkip lists top-level workdir entries that are not copied back.
	SyncSkip []string
}

func newContainerEngine(cli dockerClient, image, workdir string, defaultLimits harness.RunLimits) *containerEngine {
	return &containerEngine{
		cli:           cli,
		image:         image,
		workdir:       workdir,
		defaultLimits: normalizeLimits(defaultLimits),
	}
}

func (c *containerEngine) pullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}

func (c *containerEngine) effectiveLimits(request harness.RunLimits) harness.RunLimits {
	effective := c.defaultLimits
	overrides := normalizeLimits(request)

	if overrides.TimeLimit > 0 {
		effective.TimeLimit = overrides.TimeLimit
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}

	return effective
}

func (c *containerEngine) runProgram(ctx context.Context, limits harness.RunLimits, opts runOptions) (*containerRun, error) {
	effectiveLimits := c.effectiveLimits(limits)

	containerID, cleanup, err := c.createContainer(ctx, effectiveLimits, opts.Command, opts.AttachStdin)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := c.copyFiles(ctx, containerID, c.workdir, opts.Files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	var attach types.HijackedResponse
	if opts.AttachStdin {
		attachCtx := ctx
		if attachCtx.Err() != nil {
			attachCtx = context.Background()
		}
		attach, err = c.cli.ContainerAttach(attachCtx, containerID, container.AttachOptions{
			Stream: true,
			Stdin:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("attach container: %w", err)
		}
		defer attach.Close()
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	if opts.AttachStdin && attach.Conn != nil {
		if _, err := io.Copy(attach.Conn, bytes.NewReader(opts.Stdin)); err != nil {
			return nil, fmt.Errorf("write stdin: %w", err)
		}
		if closer, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
			_ = closer.CloseWrite()
		}
	}

	run, err := c.awaitRun(ctx, containerID, effectiveLimits, start)
	if err != nil {
		return nil, err
	}

	if opts.SyncDir != "" {
		syncCtx := ctx
		if syncCtx.Err() != nil {
			syncCtx = context.Background()
		}
		if err := c.syncWorkdir(syncCtx, containerID, opts.SyncDir, opts.SyncSkip); err != nil {
			return nil, fmt.Errorf("sync workdir: %w", err)
		}
	}

	return run, nil
}

func (c *containerEngine) awaitRun(ctx context.Context, containerID string, limits harness.RunLimits, start time.Time) (*containerRun, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if limits.TimeLimit > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, limits.TimeLimit)
	}
	status, err := c.waitForExit(waitCtx, containerID)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && limits.TimeLimit > 0 && ctx.Err() == nil {
			return c.handleTimeLimit(containerID, start)
		}
		return nil, err
	}

	inspectCtx := ctx
	if inspectCtx.Err() != nil {
		inspectCtx = context.Background()
	}

	inspect, err := c.cli.ContainerInspect(inspectCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	logCtx := ctx
	if logCtx.Err() != nil {
		logCtx = context.Background()
	}

	stdout, stderr, err := c.fetchLogs(logCtx, containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	run := &containerRun{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: int(status.StatusCode),
		Duration: time.Since(start),
	}

	if inspect.ContainerJSONBase != nil && inspect.State != nil && inspect.State.OOMKilled {
		run.OOMKilled = true
	}

	return run, nil
}

func (c *containerEngine) createContainer(ctx context.Context, limits harness.RunLimits, cmd []string, attachStdin bool) (string, func(), error) {
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: 1_000_000_000,
		},
	}
	if limits.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = limits.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = limits.MemoryLimitBytes
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        c.image,
			Cmd:          cmd,
			AttachStdout: true,
			AttachStderr: true,
			AttachStdin:  attachStdin,
			OpenStdin:    attachStdin,
			StdinOnce:    attachStdin,
			WorkingDir:   c.workdir,
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = c.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}

	return resp.ID, cleanup, nil
}
