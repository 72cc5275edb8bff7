package backend

import (
	"context"
	"fmt"

	"winery/internal/log"
	"winery/internal/winery/memory"
	"winery/internal/winery/rest"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRESTBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := rest.NewClient(config.APIBaseURL, config.APITimeout, nil, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized REST backend",
		"base_url", config.APIBaseURL,
		"timeout", config.APITimeout.String())

	return &BackendResult{
		API:  client,
		Type: RESTBackend,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	api := memory.New(memory.WithLogger(f.logger))

	f.logger.WarnContext(ctx, "Initialized in-memory backend, data is lost on restart",
		"users", "admin/admin, user/user")

	return &BackendResult{
		API:  api,
		Type: MemoryBackend,
	}, nil
}
