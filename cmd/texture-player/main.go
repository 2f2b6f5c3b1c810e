// Command texture-player plays one RTSP stream into a texture target.
//
// Without a host surface it runs headless: --count-only replaces the renderer
// plugin with a counting consumer so the decode chain can be exercised
// against a real camera.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	streamtexture "github.com/e7canasta/orion-care-sensor/modules/stream-texture"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/reconnect"
)

const version = "v0.1.0"

func main() {
	configPath := flag.StringP("config", "c", "", "YAML configuration file")
	uri := flag.String("uri", "", "RTSP stream URI (overrides stream.uri)")
	accel := flag.String("accel", "", "Decoder acceleration: auto, vaapi, software")
	width := flag.Uint("width", 0, "Texture width (overrides texture.width)")
	height := flag.Uint("height", 0, "Texture height (overrides texture.height)")
	latency := flag.Uint("latency", 0, "Latency budget in ms (overrides stream.latency_ms)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text, json")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	retries := flag.Int("reconnect", 0, "Restart attempts after transient stream errors (overrides reconnect.max_retries)")
	countOnly := flag.Bool("count-only", false, "Count frames instead of loading the renderer plugin")
	statsInterval := flag.Duration("stats-interval", 10*time.Second, "Interval between stats reports (0 disables)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("texture-player %s\n", version)
		os.Exit(0)
	}

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	if flag.CommandLine.Changed("uri") {
		cfg.Stream.URI = *uri
	}
	if flag.CommandLine.Changed("accel") {
		cfg.Decoder.Acceleration = *accel
	}
	if flag.CommandLine.Changed("width") {
		cfg.Texture.Width = *width
	}
	if flag.CommandLine.Changed("height") {
		cfg.Texture.Height = *height
	}
	if flag.CommandLine.Changed("latency") {
		cfg.Stream.LatencyMS = *latency
	}
	if flag.CommandLine.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flag.CommandLine.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if flag.CommandLine.Changed("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}
	if flag.CommandLine.Changed("reconnect") {
		cfg.Reconnect.MaxRetries = *retries
	}

	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  texture-player --uri rtsp://192.168.1.100/stream --count-only\n")
		fmt.Fprintf(os.Stderr, "  texture-player --config player.yaml\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, *countOnly, *statsInterval); err != nil {
		slog.Error("texture-player: run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("texture-player: finished")
}

func setupLogging(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg config.Config, countOnly bool, statsInterval time.Duration) error {
	ctrlCfg, err := cfg.ToControllerConfig()
	if err != nil {
		return err
	}

	var opts []streamtexture.Option
	var counted atomic.Uint64
	if countOnly {
		if ctrlCfg.Texture.Pointer == 0 {
			// The consumer never dereferences it; any non-null id passes the bridge.
			ctrlCfg.Texture.Pointer = 1
		}
		opts = append(opts, streamtexture.WithConsumer(func(uintptr, []byte, int, int, int) {
			counted.Add(1)
		}))
	}

	ctrl, err := streamtexture.New(ctrlCfg, opts...)
	if err != nil {
		return err
	}
	for _, w := range ctrl.Warnings() {
		slog.Warn("texture-player: degraded", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("texture-player: metrics server shutdown", "error", err)
			}
		}()
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	if statsInterval > 0 {
		go reportStats(statsCtx, ctrl, statsInterval, &counted)
	}

	slog.Info("texture-player: starting", "stream", ctrlCfg.Name, "texture", ctrlCfg.Texture.String())
	var rs reconnect.State
	err = reconnect.Run(ctx, ctrl.Run, cfg.ToReconnectConfig(), streamtexture.Retryable, &rs)
	stopStats()

	stats := ctrl.Stats()
	slog.Info("texture-player: final statistics",
		"uptime", stats.Uptime.Round(time.Second),
		"delivered", stats.FramesDelivered,
		"dropped", stats.FramesDropped,
		"counted", counted.Load(),
		"fps", fmt.Sprintf("%.2f", stats.FPS),
		"chain_builds", stats.ChainBuilds,
		"warnings", stats.Warnings,
		"reconnects", rs.Reconnects.Load(),
	)

	var rec *streamtexture.ErrorRecord
	if errors.As(err, &rec) {
		slog.Error("texture-player: stream failed",
			"kind", rec.Kind.String(),
			"component", rec.SourceComponent,
			"category", rec.Category.String(),
			"debug", rec.DebugDetail,
		)
	}
	return err
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("texture-player: serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("texture-player: metrics server", "error", err)
		}
	}()
	return srv
}

func reportStats(ctx context.Context, ctrl *streamtexture.Controller, every time.Duration, counted *atomic.Uint64) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := ctrl.Stats()
			slog.Info("texture-player: stats",
				"state", s.State.String(),
				"uptime", s.Uptime.Round(time.Second),
				"delivered", s.FramesDelivered,
				"dropped_dimensions", s.DroppedDimensions,
				"dropped_no_consumer", s.DroppedNoConsumer,
				"dropped_null_texture", s.DroppedNullTexture,
				"counted", counted.Load(),
				"fps", fmt.Sprintf("%.2f", s.FPS),
				"recent_fps", fmt.Sprintf("%.2f", s.RecentFPS),
				"jitter_mean", s.JitterMean,
				"stable", s.Stable,
				"decoder", s.Decoder,
				"degraded", s.Degraded,
			)
		}
	}
}
