package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	refillInterval = 100 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Pool keeps PoolSize sandbox containers running `sleep infinity` so a run
// only pays for `docker exec`, not for container start-up.
type Pool struct {
	cli        *client.Client
	config     Config
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &Pool{
		cli:        cli,
		config:     cfg,
		logger:     logger,
		containers: make(chan string, size),
		done:       make(chan struct{}),
	}
}

// Start launches the refill loop. Calling it twice is harmless.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting sandbox pool", slog.Int("poolSize", cap(p.containers)))
		p.wg.Add(1)
		go p.refill()
	})
}

// Stop ends the refill loop and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case id := <-p.containers:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Get takes a ready container, blocking until one exists or ctx ends.
func (p *Pool) Get(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Discard removes a container that has served its run.
func (p *Pool) Discard(id string) {
	p.remove(id)
}

// refill tops the pool up, backing off exponentially while container
// creation keeps failing (daemon down, image missing).
func (p *Pool) refill() {
	defer p.wg.Done()

	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()
	backoff := time.Second

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		if len(p.containers) == cap(p.containers) {
			continue
		}

		id, err := p.create()
		if err != nil {
			p.logger.Error("failed to create sandbox container",
				slog.String("error", err.Error()),
				slog.Duration("retryIn", backoff),
			)
			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		select {
		case p.containers <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.config.Image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("starting container: %w", err)
	}
	return resp.ID, nil
}

func (p *Pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove sandbox container",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}
