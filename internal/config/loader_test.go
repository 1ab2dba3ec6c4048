package config_test

import (
	"strings"
	"testing"

	"github.com/voxcord/voxcord/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
discord:
  token: bot-token
  guild_id: "123456"
realtime:
  api_key: sk-test
  model: gpt-4o-realtime-preview
  voice: verse
  instructions: Keep replies short.
  turn_detection:
    threshold: 0.6
    prefix_padding_ms: 200
    silence_duration_ms: 700
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q; want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Realtime.Voice != "verse" {
		t.Errorf("Voice = %q; want verse", cfg.Realtime.Voice)
	}
	if cfg.Realtime.TurnDetection.SilenceDurationMS != 700 {
		t.Errorf("SilenceDurationMS = %d; want 700", cfg.Realtime.TurnDetection.SilenceDurationMS)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
discord:
  token: bot-token
  totally_unknown: true
realtime:
  api_key: sk-test
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_MissingCredentials(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")

	yaml := `
server:
  log_level: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing credentials, got nil")
	}
	if !strings.Contains(err.Error(), "discord.token") {
		t.Errorf("error should mention discord.token, got: %v", err)
	}
	if !strings.Contains(err.Error(), "realtime.api_key") {
		t.Errorf("error should mention realtime.api_key, got: %v", err)
	}
}

func TestLoadFromReader_EnvFallbacks(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-bot-token")
	t.Setenv("OPENAI_API_KEY", "env-api-key")

	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: info\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Discord.Token != "env-bot-token" {
		t.Errorf("Token = %q; want env fallback", cfg.Discord.Token)
	}
	if cfg.Realtime.APIKey != "env-api-key" {
		t.Errorf("APIKey = %q; want env fallback", cfg.Realtime.APIKey)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q; want default :8080", cfg.Server.ListenAddr)
	}
}

func TestValidate_BadValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: "loud"},
		Discord: config.DiscordConfig{Token: "t"},
		Realtime: config.RealtimeConfig{
			APIKey: "k",
			TurnDetection: config.TurnDetectionConfig{
				Threshold:         1.5,
				PrefixPaddingMS:   -1,
				SilenceDurationMS: -1,
			},
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{"log_level", "threshold", "prefix_padding_ms", "silence_duration_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	cases := map[config.LogLevel]string{
		config.LogDebug: "DEBUG",
		config.LogInfo:  "INFO",
		config.LogWarn:  "WARN",
		config.LogError: "ERROR",
		"":              "INFO",
	}
	for in, want := range cases {
		if got := in.Level().String(); got != want {
			t.Errorf("LogLevel(%q).Level() = %s; want %s", in, got, want)
		}
	}
}
