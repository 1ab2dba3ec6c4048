// Package config provides the configuration schema and loader for the
// Voxcord voice bridge.
package config

import "log/slog"

// LogLevel controls log verbosity for the Voxcord server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the corresponding [slog.Level]. Unknown or empty values
// map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Voxcord.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServerConfig holds network and logging settings for the ops endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops HTTP server listens on
	// (health checks and metrics). Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds Discord gateway credentials and scoping.
type DiscordConfig struct {
	// Token is the bot token. Falls back to the DISCORD_TOKEN environment
	// variable when empty.
	Token string `yaml:"token"`

	// GuildID optionally restricts slash command registration to one guild,
	// which makes commands available immediately instead of after Discord's
	// global propagation delay. Empty registers commands globally.
	GuildID string `yaml:"guild_id"`
}

// RealtimeConfig holds speech backend settings.
type RealtimeConfig struct {
	// APIKey is the backend credential. Falls back to the OPENAI_API_KEY
	// environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model selects the realtime model. Empty uses the backend default.
	Model string `yaml:"model"`

	// BaseURL overrides the WebSocket endpoint.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesised voice identity.
	Voice string `yaml:"voice"`

	// Instructions is the system-level behavioural prompt sent during the
	// session handshake.
	Instructions string `yaml:"instructions"`

	// TurnDetection tunes the backend's server-side voice activity
	// detection.
	TurnDetection TurnDetectionConfig `yaml:"turn_detection"`
}

// TurnDetectionConfig tunes when the backend considers an utterance
// finished. Zero values select the backend defaults.
type TurnDetectionConfig struct {
	// Threshold is the VAD activation threshold in [0,1].
	Threshold float64 `yaml:"threshold"`

	// PrefixPaddingMS is audio included before detected speech starts.
	PrefixPaddingMS int `yaml:"prefix_padding_ms"`

	// SilenceDurationMS is the silence that ends an utterance.
	SilenceDurationMS int `yaml:"silence_duration_ms"`
}
