package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// messageSender is the slice of the discordgo session the notifier needs.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelNotifier delivers bridge session notices (transcripts, termination
// messages) to a guild text channel. Each guild is bound to the channel its
// last /voice join command came from; guilds with no binding drop notices.
//
// Implements bridge.Notifier. Notify never blocks the caller; sends happen
// on a short-lived goroutine.
type ChannelNotifier struct {
	sender messageSender

	mu       sync.RWMutex
	channels map[string]string // guild ID -> text channel ID
}

// NewChannelNotifier creates a notifier sending through the given session.
func NewChannelNotifier(sender messageSender) *ChannelNotifier {
	return &ChannelNotifier{
		sender:   sender,
		channels: make(map[string]string),
	}
}

// Bind routes future notices for the guild to the given text channel.
func (n *ChannelNotifier) Bind(guildID, channelID string) {
	n.mu.Lock()
	n.channels[guildID] = channelID
	n.mu.Unlock()
}

// Notify posts text to the guild's bound channel, if any.
func (n *ChannelNotifier) Notify(guildID, text string) {
	n.mu.RLock()
	channelID, ok := n.channels[guildID]
	n.mu.RUnlock()
	if !ok {
		slog.Debug("discord: no notice channel bound, dropping", "guild_id", guildID)
		return
	}

	go func() {
		if _, err := n.sender.ChannelMessageSend(channelID, text); err != nil {
			slog.Warn("discord: failed to send notice", "channel_id", channelID, "err", err)
		}
	}()
}
