package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "yaml",
			file: "wikisync.yaml",
			content: `root: ./export
endpoint: https://wiki.example.org/api.php
username: Uploader
parallel: 3
submit_delay_ms: 250
token_ttl_seconds: 30
ignore:
  - "**/*.bak"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "./export", cfg.Root)
				assert.Equal(t, "https://wiki.example.org/api.php", cfg.Endpoint)
				assert.Equal(t, "Uploader", cfg.Username)
				assert.Equal(t, 3, cfg.Parallel)
				assert.Equal(t, 250*time.Millisecond, cfg.SubmitDelay)
				assert.Equal(t, 30*time.Second, cfg.TokenTTL)
				assert.Equal(t, []string{"**/*.bak"}, cfg.IgnoreGlobs)
			},
		},
		{
			name: "json",
			file: "wikisync.json",
			content: `{
  "endpoint": "https://wiki.example.org/api.php",
  "max_attempts": 7,
  "home_section": "Start"
}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://wiki.example.org/api.php", cfg.Endpoint)
				assert.Equal(t, 7, cfg.MaxAttempts)
				assert.Equal(t, "Start", cfg.HomeSection)
				// Unset fields keep their defaults.
				assert.Equal(t, DefaultRoot, cfg.Root)
				assert.Equal(t, DefaultParallel, cfg.Parallel)
			},
		},
		{
			name: "hcl",
			file: "wikisync.hcl",
			content: `endpoint = "https://wiki.example.org/api.php"
username = "Uploader"
parallel = 2
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://wiki.example.org/api.php", cfg.Endpoint)
				assert.Equal(t, "Uploader", cfg.Username)
				assert.Equal(t, 2, cfg.Parallel)
			},
		},
		{
			name:    "yaml_unknown_field",
			file:    "wikisync.yaml",
			content: "endpont: typo\n",
			wantErr: true,
		},
		{
			name:    "json_unknown_field",
			file:    "wikisync.json",
			content: `{"endpont": "typo"}`,
			wantErr: true,
		},
		{
			name:    "unsupported_extension",
			file:    "wikisync.toml",
			content: "endpoint = 'x'",
			wantErr: true,
		},
		{
			name:    "malformed_yaml",
			file:    "wikisync.yaml",
			content: "endpoint: [unterminated\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			cfg, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults_are_valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "empty_root",
			mutate:  func(cfg *Config) { cfg.Root = "" },
			wantErr: "artifact root",
		},
		{
			name:    "non_http_endpoint",
			mutate:  func(cfg *Config) { cfg.Endpoint = "ftp://wiki.example.org" },
			wantErr: "http or https",
		},
		{
			name:    "empty_username",
			mutate:  func(cfg *Config) { cfg.Username = "" },
			wantErr: "username",
		},
		{
			name:    "zero_parallel",
			mutate:  func(cfg *Config) { cfg.Parallel = 0 },
			wantErr: "parallel",
		},
		{
			name:    "zero_attempts",
			mutate:  func(cfg *Config) { cfg.MaxAttempts = 0 },
			wantErr: "max attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
