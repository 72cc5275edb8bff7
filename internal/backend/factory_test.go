package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/config"
	"winery/internal/winery/memory"
	"winery/internal/winery/rest"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "rest", APIBaseURL: "http://api:8080/api/v1", APITimeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, RESTBackend, cfg.Type)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"rest", Config{Type: RESTBackend, APIBaseURL: "http://localhost:8080/api/v1", APITimeout: time.Second}, false},
		{"rest without url", Config{Type: RESTBackend, APITimeout: time.Second}, true},
		{"rest with relative url", Config{Type: RESTBackend, APIBaseURL: "/api/v1", APITimeout: time.Second}, true},
		{"rest without timeout", Config{Type: RESTBackend, APIBaseURL: "http://localhost:8080"}, true},
		{"unknown", Config{Type: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)

	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.IsType(t, &memory.API{}, res.API)
	assert.Nil(t, res.Cleanup)

	res, err = f.CreateBackend(context.Background(), Config{Type: RESTBackend, APIBaseURL: "http://localhost:8080/api/v1", APITimeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &rest.Client{}, res.API)

	_, err = f.CreateBackend(context.Background(), Config{Type: "sheets"})
	assert.Error(t, err)
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"rest", "memory"}, GetBackendTypeStrings())
}
