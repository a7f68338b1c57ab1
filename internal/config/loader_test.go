package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file uses defaults",
			yaml: ``,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 300*time.Millisecond, cfg.Bridge.ClickWindow)
				assert.Equal(t, BackendLog, cfg.Backend.Kind)
				assert.Equal(t, "info", cfg.Service.LogLevel)
				assert.True(t, cfg.Audit.Enabled)
			},
		},
		{
			name: "websocket backend",
			yaml: `
service:
  log_level: DEBUG
bridge:
  click_window: 500ms
backend:
  kind: websocket
  url: ws://127.0.0.1:9000/device
  reconnect_backoff: 1s
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Service.LogLevel)
				assert.Equal(t, 500*time.Millisecond, cfg.Bridge.ClickWindow)
				assert.Equal(t, "ws://127.0.0.1:9000/device", cfg.Backend.URL)
				assert.Equal(t, time.Second, cfg.Backend.ReconnectBackoff)
				assert.Equal(t, 5*time.Second, cfg.Backend.DialTimeout)
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${TEST_BB_KEY}
`,
			env: map[string]string{"TEST_BB_KEY": "secret-token"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "secret-token", cfg.API.Auth.APIKey)
			},
		},
		{
			name: "unset env var is reported",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${TEST_BB_MISSING_KEY}
`,
			wantErr: "TEST_BB_MISSING_KEY",
		},
		{
			name: "env overrides win over file",
			yaml: `
backend:
  kind: log
api:
  listen: 127.0.0.1:1
`,
			env: map[string]string{
				"BLOCKBRIDGE_BACKEND_KIND": "websocket",
				"BLOCKBRIDGE_BACKEND_URL":  "ws://device:7000",
				"BLOCKBRIDGE_API_LISTEN":   "0.0.0.0:9999",
				"BLOCKBRIDGE_CLICK_WINDOW": "1s",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, BackendWebSocket, cfg.Backend.Kind)
				assert.Equal(t, "ws://device:7000", cfg.Backend.URL)
				assert.Equal(t, "0.0.0.0:9999", cfg.API.Listen)
				assert.Equal(t, time.Second, cfg.Bridge.ClickWindow)
			},
		},
		{
			name:    "websocket without url",
			yaml:    "backend:\n  kind: websocket\n",
			wantErr: "backend.url is required",
		},
		{
			name:    "websocket with http url",
			yaml:    "backend:\n  kind: websocket\n  url: http://x\n",
			wantErr: "ws:// or wss://",
		},
		{
			name:    "unknown backend",
			yaml:    "backend:\n  kind: serial\n",
			wantErr: "backend.kind",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "api enabled without auth",
			yaml:    "api:\n  enabled: true\n",
			wantErr: "api_key or tokens",
		},
		{
			name: "token without scopes",
			yaml: `
api:
  enabled: true
  auth:
    tokens:
      - token: abc
`,
			wantErr: "scopes must be non-empty",
		},
		{
			name: "webhook endpoint",
			yaml: `
webhooks:
  listen: 127.0.0.1:8091
  endpoints:
    - path: /hooks/start
      opcode: whenflagclicked
      secret: s3cret
      signature_header: X-Signature
`,
			checkFn: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Webhooks)
				require.Len(t, cfg.Webhooks.Endpoints, 1)
				assert.Equal(t, "whenflagclicked", cfg.Webhooks.Endpoints[0].Opcode)
			},
		},
		{
			name: "webhook without opcode",
			yaml: `
webhooks:
  listen: 127.0.0.1:8091
  endpoints:
    - path: /hooks/start
      secret: s3cret
      signature_header: X-Signature
`,
			wantErr: "opcode is required",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service:\n  name: shop-floor\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "shop-floor", cfg.Service.Name)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestDiscoverFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bb.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	t.Setenv("BLOCKBRIDGE_CONFIG", path)

	got, err := Discover()
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestInterpolateEnvLeavesUnknown(t *testing.T) {
	t.Setenv("TEST_BB_KNOWN", "yes")
	assert.Equal(t, "yes ${TEST_BB_UNKNOWN_X}", interpolateEnv("${TEST_BB_KNOWN} ${TEST_BB_UNKNOWN_X}"))
}
