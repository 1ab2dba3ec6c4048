package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/voxcord/voxcord/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. The send loop pulls PCM frames from the
// installed [audio.FrameSource] every 20 ms and encodes them to Opus; the
// receive loop decodes incoming Opus packets per SSRC and forwards the PCM
// to the registered [audio.CaptureReceiver].
//
// Connection is safe for concurrent use.
type Connection struct {
	vc *discordgo.VoiceConnection

	srcMu sync.RWMutex
	src   audio.FrameSource

	recvMu   sync.RWMutex
	receiver audio.CaptureReceiver

	done      chan struct{}
	closeOnce sync.Once
	loopsDone sync.WaitGroup

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection starts the send and receive loops for an already-joined
// voice channel.
func newConnection(vc *discordgo.VoiceConnection) *Connection {
	c := &Connection{
		vc:           vc,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	c.loopsDone.Add(2)
	go c.sendLoop()
	go c.recvLoop()

	return c
}

// Play installs src as the outbound audio source. Passing nil stops output.
func (c *Connection) Play(src audio.FrameSource) {
	c.srcMu.Lock()
	c.src = src
	c.srcMu.Unlock()
}

// CaptureSupported reports true: discordgo exposes decoded inbound voice on
// OpusRecv for every connection.
func (c *Connection) CaptureSupported() bool { return true }

// OnCapture registers r as the inbound audio receiver. Only one receiver may
// be registered; subsequent calls replace it, and nil unregisters.
func (c *Connection) OnCapture(r audio.CaptureReceiver) {
	c.recvMu.Lock()
	c.receiver = r
	c.recvMu.Unlock()
}

// Disconnect leaves the voice channel and stops both loops. Safe to call
// more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
		c.loopsDone.Wait()
	})
	return err
}

// sendLoop pulls one frame from the source per 20 ms tick, encodes it to
// Opus, and writes it to the voice connection. The speaking indicator tracks
// the source's Playing state.
func (c *Connection) sendLoop() {
	defer c.loopsDone.Done()

	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: create opus encoder", "error", err)
		return
	}

	ticker := time.NewTicker(audio.PlaybackFrameDuration)
	defer ticker.Stop()

	speaking := false
	defer func() {
		if speaking {
			c.setSpeaking(false)
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.srcMu.RLock()
		src := c.src
		c.srcMu.RUnlock()
		if src == nil {
			if speaking {
				c.setSpeaking(false)
				speaking = false
			}
			continue
		}

		playing := src.Playing()
		if playing != speaking {
			c.setSpeaking(playing)
			speaking = playing
		}
		if !playing {
			// Nothing queued: skip encoding silence entirely.
			continue
		}

		frame := src.ReadFrame()
		pkt, err := enc.encode(frame)
		if err != nil {
			slog.Warn("discord: opus encode error", "error", err)
			continue
		}

		select {
		case c.vc.OpusSend <- pkt:
		case <-c.done:
			return
		}
	}
}

// recvLoop reads Opus packets from the voice connection, decodes them with a
// per-SSRC decoder, and forwards PCM (or the decode error) to the registered
// receiver. Packets arriving with no receiver registered are dropped.
func (c *Connection) recvLoop() {
	defer c.loopsDone.Done()

	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			c.recvMu.RLock()
			receiver := c.receiver
			c.recvMu.RUnlock()
			if receiver == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					receiver.ReceiveError(pkt.SSRC, err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				receiver.ReceiveError(pkt.SSRC, err)
				continue
			}

			receiver.ReceiveFrame(pkt.SSRC, audio.AudioFrame{
				Data:       pcm,
				SampleRate: audio.ChannelFormat.SampleRate,
				Channels:   audio.ChannelFormat.Channels,
				Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(audio.ChannelFormat.SampleRate),
			})
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
