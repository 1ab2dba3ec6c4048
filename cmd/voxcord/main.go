// Command voxcord runs the Discord voice bridge: it joins guild voice
// channels on command and connects everyone in them to a realtime
// speech-to-speech backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxcord/voxcord/internal/bridge"
	"github.com/voxcord/voxcord/internal/config"
	discordbot "github.com/voxcord/voxcord/internal/discord"
	"github.com/voxcord/voxcord/internal/health"
	"github.com/voxcord/voxcord/internal/observe"
	"github.com/voxcord/voxcord/pkg/realtime"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxcord: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxcord: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("voxcord starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxcord",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Discord gateway ───────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, cfg.Discord)
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	// ── Bridge registry and commands ──────────────────────────────────────────
	notifier := discordbot.NewChannelNotifier(bot.Session())
	registry := bridge.NewRegistry(bot.Platform(), realtime.Config{
		APIKey:       cfg.Realtime.APIKey,
		Model:        cfg.Realtime.Model,
		BaseURL:      cfg.Realtime.BaseURL,
		Voice:        cfg.Realtime.Voice,
		Instructions: cfg.Realtime.Instructions,
		TurnDetection: realtime.TurnDetection{
			Threshold:         cfg.Realtime.TurnDetection.Threshold,
			PrefixPaddingMS:   cfg.Realtime.TurnDetection.PrefixPaddingMS,
			SilenceDurationMS: cfg.Realtime.TurnDetection.SilenceDurationMS,
		},
	}, bridge.WithNotifier(notifier))
	discordbot.NewVoiceCommands(bot, registry, notifier)

	// ── Ops HTTP server: health probes and metrics ────────────────────────────
	checks := health.New(
		health.Checker{Name: "gateway", Check: func(context.Context) error {
			s := bot.Session()
			if s == nil || s.State == nil || s.State.User == nil {
				return errors.New("gateway session not established")
			}
			return nil
		}},
	)
	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	opsServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("discord bot: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("ops server listening", "addr", cfg.Server.ListenAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := registry.DisconnectAll(sctx); err != nil {
			slog.Warn("session teardown error", "err", err)
		}
		if err := opsServer.Shutdown(sctx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
		return nil
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
