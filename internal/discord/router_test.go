package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func commandInteraction(name, sub string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if sub != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: sub, Type: discordgo.ApplicationCommandOptionSubCommand},
		}
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: data,
		},
	}
}

func TestRouter_DispatchesSubcommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got string
	r.RegisterCommand("voice", &discordgo.ApplicationCommand{Name: "voice"},
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { got = "voice" })
	r.RegisterHandler("voice/join",
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { got = "voice/join" })

	r.Handle(nil, commandInteraction("voice", "join"))
	if got != "voice/join" {
		t.Errorf("dispatched = %q; want voice/join", got)
	}

	r.Handle(nil, commandInteraction("voice", ""))
	if got != "voice" {
		t.Errorf("dispatched = %q; want voice", got)
	}
}

func TestRouter_IgnoresOtherInteractionTypes(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	called := false
	r.RegisterHandler("voice/join",
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { called = true })

	r.Handle(nil, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{Type: discordgo.InteractionMessageComponent},
	})
	if called {
		t.Error("handler invoked for a component interaction")
	}
}

func TestRouter_ApplicationCommandsDeduplicates(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	def := &discordgo.ApplicationCommand{Name: "voice"}
	noop := func(_ *discordgo.Session, _ *discordgo.InteractionCreate) {}
	r.RegisterCommand("voice", def, noop)
	r.RegisterHandler("voice/join", noop)
	r.RegisterHandler("voice/leave", noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 {
		t.Fatalf("ApplicationCommands len = %d; want 1", len(cmds))
	}
	if cmds[0].Name != "voice" {
		t.Errorf("command name = %q; want voice", cmds[0].Name)
	}
}

func TestInteractionKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, sub, want string
	}{
		{"voice", "join", "voice/join"},
		{"voice", "", "voice"},
	}
	for _, tc := range cases {
		i := commandInteraction(tc.name, tc.sub)
		if got := interactionKey(i.ApplicationCommandData()); got != tc.want {
			t.Errorf("interactionKey(%s, %s) = %q; want %q", tc.name, tc.sub, got, tc.want)
		}
	}
}
