package backend

import (
	"context"
	"time"

	"winery/internal/winery"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the API implementation and optional cleanup function
type BackendResult struct {
	API     winery.API
	Type    BackendType
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST specific
	APIBaseURL string
	APITimeout time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	// RESTBackend talks to the winery REST API.
	RESTBackend BackendType = "rest"
	// MemoryBackend is the in-process fake used for demos and tests.
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case RESTBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
