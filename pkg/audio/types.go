// Package audio defines the PCM types, fixed format profiles, and the
// voice-channel abstraction Voxcord's bridge is built on.
//
// Two fixed profiles flow through the system:
//
//   - [ChannelFormat] — 48 kHz, stereo, 16-bit little-endian PCM, the format
//     Discord's voice transport decodes to and encodes from.
//   - [BackendFormat] — 16 kHz, mono, 16-bit little-endian PCM, the format
//     the realtime speech backend consumes and produces.
//
// Conversion between the two is done by [Downsample] and [Upsample]. The
// platform abstraction ([Platform], [Connection]) is intentionally narrow so
// the bridge stays decoupled from the Discord SDK; codec work (Opus) belongs
// entirely to the platform adapter.
package audio

import "time"

// Format describes the sample rate and channel count of a PCM stream.
// All audio in Voxcord is 16-bit signed little-endian.
type Format struct {
	SampleRate int
	Channels   int
}

// The two fixed PCM profiles of the bridge.
var (
	// ChannelFormat is the voice-channel side: 48 kHz stereo.
	ChannelFormat = Format{SampleRate: 48000, Channels: 2}

	// BackendFormat is the speech-backend side: 16 kHz mono.
	BackendFormat = Format{SampleRate: 16000, Channels: 1}
)

const (
	// SampleBytes is the width of a single 16-bit PCM sample.
	SampleBytes = 2

	// PlaybackFrameBytes is the exact size of one playback frame:
	// 20 ms at 48 kHz stereo = 960 samples × 2 channels × 2 bytes.
	PlaybackFrameBytes = 3840

	// PlaybackFrameDuration is the cadence of the playback pipeline.
	PlaybackFrameDuration = 20 * time.Millisecond
)

// AudioFrame is an immutable buffer of linear PCM samples tagged with its
// format. Frames are never mutated in place; conversions allocate new data.
type AudioFrame struct {
	// Data holds interleaved 16-bit little-endian PCM samples.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when the frame was captured, relative to stream start.
	Timestamp time.Duration
}
