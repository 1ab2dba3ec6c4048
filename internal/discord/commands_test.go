package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxcord/voxcord/internal/bridge"
	"github.com/voxcord/voxcord/pkg/realtime"
)

func TestFormatStatus(t *testing.T) {
	t.Parallel()

	st := bridge.Status{
		GuildID:          "g1",
		ChannelID:        "c1",
		BackendState:     realtime.StateActive,
		Replying:         true,
		CaptureEnabled:   true,
		BufferedPlayback: 7680,
		Uptime:           90*time.Second + 300*time.Millisecond,
	}

	out := formatStatus(st)
	for _, want := range []string{"<#c1>", "active", "speaking", "enabled", "7680", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatStatus missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatStatus_PlaybackOnly(t *testing.T) {
	t.Parallel()

	st := bridge.Status{
		ChannelID:    "c2",
		BackendState: realtime.StateActive,
	}

	out := formatStatus(st)
	if !strings.Contains(out, "playback only") {
		t.Errorf("formatStatus should flag missing capture:\n%s", out)
	}
	if !strings.Contains(out, "idle") {
		t.Errorf("formatStatus should report idle when not replying:\n%s", out)
	}
}

func TestInteractionUserID(t *testing.T) {
	t.Parallel()

	member := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: &discordgo.User{ID: "u-guild"}},
		},
	}
	if got := interactionUserID(member); got != "u-guild" {
		t.Errorf("member user ID = %q; want u-guild", got)
	}

	dm := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			User: &discordgo.User{ID: "u-dm"},
		},
	}
	if got := interactionUserID(dm); got != "u-dm" {
		t.Errorf("DM user ID = %q; want u-dm", got)
	}

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := interactionUserID(empty); got != "" {
		t.Errorf("empty interaction user ID = %q; want empty", got)
	}
}
