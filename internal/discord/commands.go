package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxcord/voxcord/internal/bridge"
)

// connectTimeout bounds the channel join plus backend handshake triggered by
// /voice join.
const connectTimeout = 30 * time.Second

// VoiceCommands holds the dependencies for the /voice slash commands.
type VoiceCommands struct {
	registry *bridge.Registry
	notifier *ChannelNotifier
}

// NewVoiceCommands creates a VoiceCommands and registers its handlers with
// the bot's router.
func NewVoiceCommands(bot *Bot, registry *bridge.Registry, notifier *ChannelNotifier) *VoiceCommands {
	vc := &VoiceCommands{
		registry: registry,
		notifier: notifier,
	}
	vc.Register(bot.Router())
	return vc
}

// Register registers the /voice command group with the router.
func (vc *VoiceCommands) Register(router *CommandRouter) {
	router.RegisterCommand("voice", vc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		RespondEphemeral(s, i, "Please use a subcommand: `/voice join`, `/voice leave`, or `/voice status`.")
	})
	router.RegisterHandler("voice/join", vc.handleJoin)
	router.RegisterHandler("voice/leave", vc.handleLeave)
	router.RegisterHandler("voice/status", vc.handleStatus)
}

// Definition returns the ApplicationCommand definition for Discord.
func (vc *VoiceCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "voice",
		Description: "Manage the voice assistant",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Bring the assistant into your current voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Remove the assistant from the voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the state of the active voice session",
			},
		},
	}
}

// handleJoin handles /voice join.
func (vc *VoiceCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID := i.GuildID
	userID := interactionUserID(i)

	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		RespondEphemeral(s, i, "You must be in a voice channel first.")
		return
	}

	// Joining and handshaking can take a moment.
	DeferReply(s, i)

	if vc.notifier != nil {
		// Transcripts and notices go to the text channel the command came from.
		vc.notifier.Bind(guildID, i.ChannelID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if _, err := vc.registry.Connect(ctx, guildID, vs.ChannelID); err != nil {
		FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}
	FollowUp(s, i, fmt.Sprintf("Joined <#%s>. Just start talking!", vs.ChannelID))
}

// handleLeave handles /voice leave.
func (vc *VoiceCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID := i.GuildID

	if _, ok := vc.registry.Session(guildID); !ok {
		RespondEphemeral(s, i, "Not in a voice channel.")
		return
	}

	if err := vc.registry.Disconnect(context.Background(), guildID); err != nil {
		RespondError(s, i, fmt.Errorf("discord: leave voice channel: %w", err))
		return
	}
	RespondEphemeral(s, i, "Left the voice channel.")
}

// handleStatus handles /voice status.
func (vc *VoiceCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := vc.registry.Session(i.GuildID)
	if !ok {
		RespondEphemeral(s, i, "No active voice session.")
		return
	}
	RespondEphemeral(s, i, formatStatus(session.Status()))
}

// formatStatus renders one session status for an ephemeral reply.
func formatStatus(st bridge.Status) string {
	reply := "idle"
	if st.Replying {
		reply = "speaking"
	}
	capture := "enabled"
	if !st.CaptureEnabled {
		capture = "unavailable (playback only)"
	}
	return fmt.Sprintf(
		"**Channel:** <#%s>\n**Backend:** %s (%s)\n**Capture:** %s\n**Queued playback:** %d bytes\n**Uptime:** %s",
		st.ChannelID,
		st.BackendState,
		reply,
		capture,
		st.BufferedPlayback,
		st.Uptime.Truncate(time.Second),
	)
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
