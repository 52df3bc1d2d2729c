package docker

import (
	"time"
)

// Config holds the sandbox limits.
type Config struct {
	// Image is the Docker image examples run in.
	Image string
	// MemoryLimit is the container memory cap in bytes.
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout bounds a single run.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to keep ready.
	PoolSize int
	// MaxOutputBytes truncates stdout and stderr independently. Zero means
	// no limit.
	MaxOutputBytes int
}

// DefaultConfig is a small Python sandbox.
func DefaultConfig() Config {
	return Config{
		Image:          "python:3.12-alpine",
		MemoryLimit:    128 * 1024 * 1024,
		CPULimit:       0.5,
		Timeout:        10 * time.Second,
		PoolSize:       2,
		MaxOutputBytes: 64 * 1024,
	}
}
