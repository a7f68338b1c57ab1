package config

import "time"

// Config represents the complete blockbridge configuration.
type Config struct {
	Service  ServiceConfig   `yaml:"service"`
	Bridge   BridgeConfig    `yaml:"bridge"`
	Backend  BackendConfig   `yaml:"backend"`
	API      APIConfig       `yaml:"api,omitempty"`
	Webhooks *WebhooksConfig `yaml:"webhooks,omitempty"`
	Audit    AuditConfig     `yaml:"audit"`
	Events   EventsConfig    `yaml:"events"`
	Lock     LockConfig      `yaml:"lock"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// BridgeConfig tunes the dispatch bridge.
type BridgeConfig struct {
	// ClickWindow is the cooldown between accepted start-click events.
	ClickWindow time.Duration `yaml:"click_window"`
}

// Backend kinds.
const (
	BackendWebSocket = "websocket"
	BackendLog       = "log"
)

// BackendConfig selects and configures the device backend handler.
type BackendConfig struct {
	Kind             string            `yaml:"kind"` // websocket | log
	URL              string            `yaml:"url,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty"`
	DialTimeout      time.Duration     `yaml:"dial_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	ReconnectBackoff time.Duration     `yaml:"reconnect_backoff"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
	// MaxWait bounds how long a waiting request may block on the device.
	MaxWait time.Duration `yaml:"max_wait"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint maps a signed POST path to a start event.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Opcode          string `yaml:"opcode"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
}

// AuditConfig controls the sqlite dispatch log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Buffer  int    `yaml:"buffer"`
}

// EventsConfig sizes the in-memory event hub.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// LockConfig locates the single-instance PID lock.
type LockConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "blockbridge",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Bridge: BridgeConfig{
			ClickWindow: 300 * time.Millisecond,
		},
		Backend: BackendConfig{
			Kind:             BackendLog,
			DialTimeout:      5 * time.Second,
			WriteTimeout:     5 * time.Second,
			ReconnectBackoff: 2 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
			MaxWait: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "./data/blockbridge.db",
			Buffer:  256,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Lock: LockConfig{
			Path: "./data/blockbridge.lock",
		},
	}
}
