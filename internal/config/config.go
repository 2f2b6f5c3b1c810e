// Package config loads the texture-player YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	streamtexture "github.com/e7canasta/orion-care-sensor/modules/stream-texture"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/glbridge"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/reconnect"
)

// Config is the complete player configuration.
type Config struct {
	Name        string          `yaml:"name"`
	LogLevel    string          `yaml:"log_level"`    // debug, info, warn, error
	LogFormat   string          `yaml:"log_format"`   // text, json
	MetricsAddr string          `yaml:"metrics_addr"` // empty disables /metrics
	Stream      StreamConfig    `yaml:"stream"`
	GL          GLConfig        `yaml:"gl"`
	Texture     TextureConfig   `yaml:"texture"`
	Decoder     DecoderConfig   `yaml:"decoder"`
	Plugin      PluginConfig    `yaml:"plugin"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
}

// StreamConfig describes the RTSP source.
type StreamConfig struct {
	URI          string `yaml:"uri"`
	LatencyMS    uint   `yaml:"latency_ms"`
	KeepAlive    bool   `yaml:"keepalive"`
	Transport    string `yaml:"transport"` // any, tcp, udp
	TCPTimeoutMS uint   `yaml:"tcp_timeout_ms"`
	ResolveHost  bool   `yaml:"resolve_host"`
}

// GLConfig references the host GL context. A zero ContextPtr selects
// system-memory delivery.
type GLConfig struct {
	ContextPtr uint64 `yaml:"context_ptr"`
	Platform   string `yaml:"platform"` // egl, glx, wgl
	API        string `yaml:"api"`      // gles2, gl, gl3
}

// TextureConfig describes the host texture frames are delivered to.
type TextureConfig struct {
	Ptr    uint64 `yaml:"ptr"`
	Width  uint   `yaml:"width"`
	Height uint   `yaml:"height"`
}

// DecoderConfig selects the H.264 decoder.
type DecoderConfig struct {
	Acceleration string `yaml:"acceleration"` // auto, vaapi, software
}

// PluginConfig overrides the renderer plugin location.
type PluginConfig struct {
	Path string `yaml:"path"`
}

// ReconnectConfig restarts the stream after transient runtime errors.
type ReconnectConfig struct {
	MaxRetries     int  `yaml:"max_retries"` // 0 disables
	InitialDelayMS uint `yaml:"initial_delay_ms"`
	MaxDelayMS     uint `yaml:"max_delay_ms"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ToControllerConfig converts a validated configuration.
func (c *Config) ToControllerConfig() (streamtexture.Config, error) {
	accel, err := graph.ParseAcceleration(c.Decoder.Acceleration)
	if err != nil {
		return streamtexture.Config{}, err
	}

	out := streamtexture.Config{
		Name: c.Name,
		Stream: streamtexture.StreamDescriptor{
			URI:             c.Stream.URI,
			LatencyBudgetMS: c.Stream.LatencyMS,
			KeepAlive:       c.Stream.KeepAlive,
			TCPTimeout:      time.Duration(c.Stream.TCPTimeoutMS) * time.Millisecond,
		},
		Texture: streamtexture.TextureTarget{
			Pointer: uintptr(c.Texture.Ptr),
			Width:   c.Texture.Width,
			Height:  c.Texture.Height,
		},
		Acceleration: accel,
		PluginPath:   c.Plugin.Path,
		ResolveHost:  c.Stream.ResolveHost,
	}

	switch c.Stream.Transport {
	case "tcp":
		out.Stream.Transport = streamtexture.TransportTCP
	case "udp":
		out.Stream.Transport = streamtexture.TransportUDP
	}

	if c.GL.ContextPtr != 0 {
		platform, err := glbridge.ParsePlatform(c.GL.Platform)
		if err != nil {
			return streamtexture.Config{}, err
		}
		api, err := glbridge.ParseAPI(c.GL.API)
		if err != nil {
			return streamtexture.Config{}, err
		}
		out.GLContext = streamtexture.GLContextHandle{
			Pointer:  uintptr(c.GL.ContextPtr),
			Platform: platform,
			API:      api,
		}
	}

	return out, nil
}

// ToReconnectConfig converts the reconnect section of a validated
// configuration.
func (c *Config) ToReconnectConfig() reconnect.Config {
	rc := reconnect.DefaultConfig()
	rc.MaxRetries = c.Reconnect.MaxRetries
	rc.RetryDelay = time.Duration(c.Reconnect.InitialDelayMS) * time.Millisecond
	rc.MaxRetryDelay = time.Duration(c.Reconnect.MaxDelayMS) * time.Millisecond
	return rc
}
