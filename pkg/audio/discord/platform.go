// Package discord provides the [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library.
//
// Discord's voice transport carries Opus; this adapter owns all codec work so
// the bridge core only ever sees raw PCM. Outbound audio is pulled from an
// [audio.FrameSource] at the 20 ms Opus frame cadence and encoded with gopus;
// inbound packets are demuxed by SSRC, decoded with a per-stream gopus
// decoder, and handed to the registered [audio.CaptureReceiver].
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/voxcord/voxcord/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] on top of an active
// *discordgo.Session owned by the bot layer. Safe for concurrent use.
type Platform struct {
	session *discordgo.Session
}

// New creates a Platform for the given gateway session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// Connect joins the voice channel and returns an active [audio.Connection].
// The ctx governs the join attempt only; the Connection lives until
// Disconnect. mute=false (we send audio), deaf=false (we receive audio).
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	return newConnection(vc), nil
}
