package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type fakeSender struct {
	sent chan [2]string // channel ID, content
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent <- [2]string{channelID, content}
	return &discordgo.Message{}, nil
}

func TestChannelNotifier_SendsToBoundChannel(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sent: make(chan [2]string, 1)}
	n := NewChannelNotifier(sender)
	n.Bind("g1", "text-1")

	n.Notify("g1", "hello")

	select {
	case msg := <-sender.sent:
		if msg[0] != "text-1" || msg[1] != "hello" {
			t.Errorf("sent = %v; want [text-1 hello]", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("notice never sent")
	}
}

func TestChannelNotifier_DropsUnboundGuild(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sent: make(chan [2]string, 1)}
	n := NewChannelNotifier(sender)

	n.Notify("unbound", "hello")

	select {
	case msg := <-sender.sent:
		t.Errorf("unexpected send %v for unbound guild", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelNotifier_RebindReplacesChannel(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sent: make(chan [2]string, 2)}
	n := NewChannelNotifier(sender)
	n.Bind("g1", "text-1")
	n.Bind("g1", "text-2")

	n.Notify("g1", "hi")

	select {
	case msg := <-sender.sent:
		if msg[0] != "text-2" {
			t.Errorf("sent to %q; want text-2", msg[0])
		}
	case <-time.After(time.Second):
		t.Fatal("notice never sent")
	}
}
