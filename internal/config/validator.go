package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.Bridge.ClickWindow <= 0 {
		return fmt.Errorf("bridge.click_window must be positive")
	}

	if err := validateBackend(&cfg.Backend); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if cfg.API.MaxWait <= 0 {
			return fmt.Errorf("api.max_wait must be positive")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when api is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := unresolved(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
		}
	}

	if cfg.Webhooks != nil {
		if err := validateWebhooks(cfg.Webhooks); err != nil {
			return err
		}
	}

	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}
	if cfg.Audit.Buffer < 0 {
		return fmt.Errorf("audit.buffer must not be negative")
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must not be negative")
	}
	if cfg.Lock.Path == "" {
		return fmt.Errorf("lock.path is required")
	}
	return nil
}

func validateBackend(b *BackendConfig) error {
	switch b.Kind {
	case BackendLog:
		return nil
	case BackendWebSocket:
		if b.URL == "" {
			return fmt.Errorf("backend.url is required for websocket backend")
		}
		if err := unresolved("backend.url", b.URL); err != nil {
			return err
		}
		if !strings.HasPrefix(b.URL, "ws://") && !strings.HasPrefix(b.URL, "wss://") {
			return fmt.Errorf("backend.url must use ws:// or wss:// (got %q)", b.URL)
		}
		if b.DialTimeout <= 0 || b.WriteTimeout <= 0 || b.ReconnectBackoff <= 0 {
			return fmt.Errorf("backend timeouts must be positive")
		}
		return nil
	default:
		return fmt.Errorf("backend.kind must be %q or %q (got %q)", BackendWebSocket, BackendLog, b.Kind)
	}
}

func validateWebhooks(wc *WebhooksConfig) error {
	if wc.Listen == "" {
		return fmt.Errorf("webhooks.listen is required")
	}
	seen := make(map[string]bool, len(wc.Endpoints))
	for i, ep := range wc.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("%s.path must start with / (got %q)", field, ep.Path)
		}
		if seen[ep.Path] {
			return fmt.Errorf("%s.path %q is duplicated", field, ep.Path)
		}
		seen[ep.Path] = true
		if ep.Opcode == "" {
			return fmt.Errorf("%s.opcode is required", field)
		}
		if ep.Secret == "" {
			return fmt.Errorf("%s.secret is required", field)
		}
		if err := unresolved(field+".secret", ep.Secret); err != nil {
			return err
		}
		if ep.SignatureHeader == "" {
			return fmt.Errorf("%s.signature_header is required", field)
		}
	}
	return nil
}
