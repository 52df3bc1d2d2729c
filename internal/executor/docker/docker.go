// Package docker runs example programs in throwaway Docker containers.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/example-author/internal/executor"
)

var _ executor.Executor = (*Executor)(nil)

// Executor implements executor.Executor on top of a pool of pre-warmed
// containers. Every container serves exactly one run and is then removed.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

// New connects to the Docker daemon from the environment, pulls the image and
// starts filling the pool.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	logger.Info("ensuring sandbox image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(pullCtx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling %s: %w", cfg.Image, err)
	}
	// The pull only finishes once the progress stream is drained.
	io.Copy(io.Discard, reader)
	reader.Close()
	logger.Info("sandbox image is ready", slog.String("image", cfg.Image))

	e := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	e.pool.Start()
	return e, nil
}

// Close stops the pool and the docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Run executes prog in a fresh container via `docker exec`.
//
// A run that exceeds Config.Timeout is reported with TimedOut set and
// executor.TimeoutExitCode rather than as an error: a hanging example is a
// result the author needs to see, not a sandbox failure.
func (e *Executor) Run(ctx context.Context, prog executor.Program) (*executor.Result, error) {
	argv, err := executor.Command(prog.Language, prog.Source)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	containerID, err := e.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: waiting for container: %w", err)
	}
	defer e.pool.Discard(containerID)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	execResp, err := e.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          argv,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: creating exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: attaching to exec: %w", err)
	}
	defer attachResp.Close()

	stdout := &limitedBuffer{max: e.config.MaxOutputBytes}
	stderr := &limitedBuffer{max: e.config.MaxOutputBytes}

	done := make(chan struct{})
	go func() {
		// Docker multiplexes both streams over one connection.
		_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		close(done)
	}()

	result := &executor.Result{}
	select {
	case <-done:
		inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return nil, fmt.Errorf("docker: inspecting exec: %w", err)
		}
		result.ExitCode = inspect.ExitCode
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.ExitCode = executor.TimeoutExitCode
		result.TimedOut = true
		stderr.WriteString("\nExecution timed out.\n")
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(start)

	e.logger.Debug("sandbox run finished",
		slog.String("language", prog.Language),
		slog.Int("exitCode", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// limitedBuffer keeps the first max bytes written and silently drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		return b.buf.Write(p)
	}
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) WriteString(s string) {
	b.buf.WriteString(s)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]\n"
	}
	return b.buf.String()
}
