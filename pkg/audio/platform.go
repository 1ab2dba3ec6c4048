package audio

import "context"

// FrameSource is the pull side of the playback pipeline. The platform's send
// loop calls ReadFrame once per [PlaybackFrameDuration] on its own goroutine.
//
// Implementations must never block and must always return a buffer of exactly
// [PlaybackFrameBytes] — silence when nothing is queued.
type FrameSource interface {
	// ReadFrame returns the next playback frame in ChannelFormat.
	ReadFrame() []byte

	// Playing reports whether audio is queued or mid-frame. The platform uses
	// this to toggle its speaking indicator.
	Playing() bool
}

// CaptureReceiver consumes per-participant audio captured from a voice
// channel. Both methods are invoked on the platform's receive goroutine and
// must return quickly and never panic across that boundary.
type CaptureReceiver interface {
	// ReceiveFrame delivers one decoded frame in ChannelFormat for the
	// participant stream identified by ssrc.
	ReceiveFrame(ssrc uint32, frame AudioFrame)

	// ReceiveError reports a decode failure on the given stream. Corrupt
	// fragments are expected on real networks; receivers throttle their own
	// logging.
	ReceiveError(ssrc uint32, err error)
}

// Connection is an active presence on one voice channel.
//
// Implementations must be safe for concurrent use. Capture support is
// optional: a playback-only platform returns false from CaptureSupported and
// ignores OnCapture.
type Connection interface {
	// Play installs src as the outbound audio source. The platform begins
	// pulling frames at its own cadence on a private goroutine. Passing nil
	// stops playback output (silence).
	Play(src FrameSource)

	// CaptureSupported reports whether this connection can deliver
	// per-participant inbound audio. Checked once at session start.
	CaptureSupported() bool

	// OnCapture registers r to receive decoded participant audio. Only one
	// receiver may be registered; subsequent calls replace it, and nil
	// unregisters. No-op when CaptureSupported is false.
	OnCapture(r CaptureReceiver)

	// Disconnect leaves the voice channel and stops all platform goroutines.
	// Safe to call more than once; subsequent calls return nil.
	Disconnect() error
}

// Platform joins voice channels and hands back Connections. Implementations
// wrap a provider SDK (Discord today) and must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel channelID in guild guildID. The ctx
	// governs the join attempt only; the returned Connection lives until
	// Disconnect.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
