package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/config"
)

// FromGlobalConfig converts config.WebhooksConfig to webhook.Config.
func FromGlobalConfig(wc *config.WebhooksConfig) (Config, error) {
	if wc == nil {
		return Config{}, fmt.Errorf("webhooks config is nil")
	}

	cfg := Config{
		Listen:    wc.Listen,
		Endpoints: make([]EndpointConfig, len(wc.Endpoints)),
	}
	for i, ep := range wc.Endpoints {
		if !bridge.IsStartEvent(ep.Opcode) {
			return Config{}, fmt.Errorf("webhook endpoint %q: opcode %q is not a start event", ep.Path, ep.Opcode)
		}
		if ep.Secret == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: no secret configured", ep.Path)
		}

		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		cfg.Endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Opcode:          ep.Opcode,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			MaxBodySize:     maxBodySize,
		}
	}
	return cfg, nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMaxBodySize parses "65536", "64KB", "1MB" or "1GB". Empty means DefaultMaxBodySize.
func parseMaxBodySize(size string) (int64, error) {
	size = strings.ToUpper(strings.TrimSpace(size))
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	mult := int64(1)
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(size, u.suffix); ok {
			size, mult = strings.TrimSpace(rest), u.mult
			break
		}
	}

	value, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if value > (1<<62)/mult {
		return 0, fmt.Errorf("size too large")
	}
	return value * mult, nil
}
