// Package bridge wires a platform voice connection to a realtime
// speech-to-speech backend session: captured channel audio flows down to the
// backend, synthesised reply audio flows back up into the channel.
//
// The [Registry] owns session lifecycle per guild; a [VoiceSession] owns one
// live bridge. [PlaybackSource] and [CaptureSink] are the two directional
// adapters that keep the audio path and the network path decoupled so
// neither side can stall the other.
package bridge

import (
	"sync"

	"github.com/voxcord/voxcord/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.FrameSource = (*PlaybackSource)(nil)

// PlaybackSource buffers reply audio and serves it to the platform send loop
// in exact playback-frame slices. Enqueue appends whole reply chunks;
// ReadFrame drains them 20 ms at a time. ReadFrame never blocks: when less
// than a full frame is buffered the tail is zero-padded, and an empty queue
// yields pure silence.
type PlaybackSource struct {
	mu     sync.Mutex
	queue  [][]byte
	cursor int // consumed bytes of queue[0]
}

// NewPlaybackSource returns an empty source.
func NewPlaybackSource() *PlaybackSource {
	return &PlaybackSource{}
}

// Enqueue appends one chunk of playback-format PCM. The source takes
// ownership of pcm. Empty chunks are ignored.
func (p *PlaybackSource) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, pcm)
	p.mu.Unlock()
}

// Playing reports whether any buffered audio remains.
func (p *PlaybackSource) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0
}

// Buffered returns the number of buffered bytes not yet read.
func (p *PlaybackSource) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := -p.cursor
	for _, chunk := range p.queue {
		n += len(chunk)
	}
	return n
}

// ReadFrame returns the next frame of exactly [audio.PlaybackFrameBytes],
// crossing chunk boundaries as needed and zero-padding when the queue runs
// dry mid-frame.
func (p *PlaybackSource) ReadFrame() []byte {
	frame := make([]byte, audio.PlaybackFrameBytes)

	p.mu.Lock()
	defer p.mu.Unlock()

	filled := 0
	for filled < len(frame) && len(p.queue) > 0 {
		head := p.queue[0][p.cursor:]
		n := copy(frame[filled:], head)
		filled += n
		if n == len(head) {
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.cursor = 0
		} else {
			p.cursor += n
		}
	}
	return frame
}

// Clear drops all buffered audio.
func (p *PlaybackSource) Clear() {
	p.mu.Lock()
	p.queue = nil
	p.cursor = 0
	p.mu.Unlock()
}
