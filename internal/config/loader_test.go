package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeConfigFile marshals the given document to YAML in a temp dir and
// returns the file path.
func writeConfigFile(t *testing.T, doc map[string]any) string {
	t.Helper()

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Maintenance.Enabled)
	assert.Contains(t, cfg.Maintenance.ExemptPaths, "/healthz")

	names := make([]string, 0, len(cfg.RateLimit.Policies))
	for _, p := range cfg.RateLimit.Policies {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"auth-strict", "api-general", "chat-user"}, names)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"server": map[string]any{
			"port":         9090,
			"read_timeout": "45s",
		},
		"logging": map[string]any{"level": "debug"},
		"rate_limit": map[string]any{
			"policies": []map[string]any{
				{"name": "tight", "window": "30s", "max_requests": 5, "scope": "user"},
			},
			"rules": []map[string]any{
				{"prefix": "/", "policies": []string{"tight"}},
			},
		},
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.RateLimit.Policies, 1)
	assert.Equal(t, "tight", cfg.RateLimit.Policies[0].Name)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Policies[0].Window)
	assert.Equal(t, 5, cfg.RateLimit.Policies[0].MaxRequests)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Maintenance.RetryAfter)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("GOVERNOR_LOGGING_LEVEL", "warn")
	t.Setenv("GOVERNOR_MAINTENANCE_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Maintenance.Enabled)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		doc     map[string]any
		wantErr string
	}{
		{
			name: "rule references unknown policy",
			doc: map[string]any{
				"rate_limit": map[string]any{
					"policies": []map[string]any{
						{"name": "only", "window": "1m", "max_requests": 10, "scope": "ip"},
					},
					"rules": []map[string]any{
						{"prefix": "/", "policies": []string{"ghost"}},
					},
				},
			},
			wantErr: "unknown policy",
		},
		{
			name: "bad scope",
			doc: map[string]any{
				"rate_limit": map[string]any{
					"policies": []map[string]any{
						{"name": "bad", "window": "1m", "max_requests": 10, "scope": "tenant"},
					},
				},
			},
			wantErr: "scope",
		},
		{
			name: "port out of range",
			doc: map[string]any{
				"server": map[string]any{"port": 70000},
			},
			wantErr: "port out of range",
		},
		{
			name: "breaker without cooldown",
			doc: map[string]any{
				"breakers": []map[string]any{
					{"name": "flaky", "failure_threshold": 3, "cooldown": "0s"},
				},
			},
			wantErr: "cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
