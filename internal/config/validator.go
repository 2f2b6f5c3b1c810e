package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/glbridge"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/source"
)

const (
	defaultLatencyMS = 100
	maxLatencyMS     = 10_000
	defaultWidth     = 640
	defaultHeight    = 480
)

var namePattern = regexp.MustCompile(`^[a-z0-9\-_]+$`)

// Validate checks cfg and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if !namePattern.MatchString(cfg.Name) {
		return fmt.Errorf("name must match pattern [a-z0-9-_]+")
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}

	if err := validateStream(&cfg.Stream); err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	if cfg.GL.ContextPtr != 0 {
		if cfg.GL.Platform == "" {
			cfg.GL.Platform = "egl"
		}
		if cfg.GL.API == "" {
			cfg.GL.API = "gles2"
		}
		if _, err := glbridge.ParsePlatform(cfg.GL.Platform); err != nil {
			return fmt.Errorf("gl.platform: %w", err)
		}
		if _, err := glbridge.ParseAPI(cfg.GL.API); err != nil {
			return fmt.Errorf("gl.api: %w", err)
		}
	}

	if cfg.Texture.Width == 0 {
		cfg.Texture.Width = defaultWidth
	}
	if cfg.Texture.Height == 0 {
		cfg.Texture.Height = defaultHeight
	}

	if _, err := graph.ParseAcceleration(cfg.Decoder.Acceleration); err != nil {
		return fmt.Errorf("decoder.acceleration: %w", err)
	}

	if cfg.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0")
	}
	if cfg.Reconnect.InitialDelayMS == 0 {
		cfg.Reconnect.InitialDelayMS = 1000
	}
	if cfg.Reconnect.MaxDelayMS == 0 {
		cfg.Reconnect.MaxDelayMS = 30_000
	}
	if cfg.Reconnect.MaxDelayMS < cfg.Reconnect.InitialDelayMS {
		return fmt.Errorf("reconnect.max_delay_ms must be >= initial_delay_ms")
	}

	return nil
}

func validateStream(s *StreamConfig) error {
	if s.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if err := source.ValidateURI(s.URI); err != nil {
		return err
	}

	if s.LatencyMS == 0 {
		s.LatencyMS = defaultLatencyMS
	}
	if s.LatencyMS > maxLatencyMS {
		return fmt.Errorf("latency_ms must be <= %d, got %d", maxLatencyMS, s.LatencyMS)
	}

	s.Transport = strings.ToLower(s.Transport)
	switch s.Transport {
	case "", "any", "tcp", "udp":
	default:
		return fmt.Errorf("transport must be any, tcp or udp, got %q", s.Transport)
	}

	return nil
}
