package bridge

import (
	"bytes"
	"testing"

	"github.com/voxcord/voxcord/pkg/audio"
)

func TestPlaybackSource_EmptyReadsSilence(t *testing.T) {
	t.Parallel()

	p := NewPlaybackSource()
	if p.Playing() {
		t.Error("empty source reports Playing")
	}

	frame := p.ReadFrame()
	if len(frame) != audio.PlaybackFrameBytes {
		t.Fatalf("frame = %d bytes; want %d", len(frame), audio.PlaybackFrameBytes)
	}
	if !bytes.Equal(frame, make([]byte, audio.PlaybackFrameBytes)) {
		t.Error("empty source frame is not silence")
	}
}

func TestPlaybackSource_DrainsChunkInExactFrames(t *testing.T) {
	t.Parallel()

	// One 9600-byte chunk is two and a half frames: two full reads and a
	// zero-padded third.
	chunk := make([]byte, 9600)
	for i := range chunk {
		chunk[i] = byte(i%250 + 1) // never zero, so padding is detectable
	}

	p := NewPlaybackSource()
	p.Enqueue(chunk)
	if !p.Playing() {
		t.Fatal("source with queued audio reports not Playing")
	}
	if got := p.Buffered(); got != 9600 {
		t.Errorf("Buffered = %d; want 9600", got)
	}

	first := p.ReadFrame()
	second := p.ReadFrame()
	if !bytes.Equal(first, chunk[:audio.PlaybackFrameBytes]) {
		t.Error("first frame does not match chunk head")
	}
	if !bytes.Equal(second, chunk[audio.PlaybackFrameBytes:2*audio.PlaybackFrameBytes]) {
		t.Error("second frame does not match chunk middle")
	}

	third := p.ReadFrame()
	if !bytes.Equal(third[:1920], chunk[2*audio.PlaybackFrameBytes:]) {
		t.Error("third frame head does not match chunk tail")
	}
	if !bytes.Equal(third[1920:], make([]byte, audio.PlaybackFrameBytes-1920)) {
		t.Error("third frame tail is not zero-padded")
	}

	if p.Playing() {
		t.Error("drained source still reports Playing")
	}
}

func TestPlaybackSource_FrameSpansChunks(t *testing.T) {
	t.Parallel()

	p := NewPlaybackSource()
	a := bytes.Repeat([]byte{0xAA}, 2000)
	b := bytes.Repeat([]byte{0xBB}, 2000)
	p.Enqueue(a)
	p.Enqueue(b)

	frame := p.ReadFrame()
	if !bytes.Equal(frame[:2000], a) {
		t.Error("frame head does not come from first chunk")
	}
	if !bytes.Equal(frame[2000:], b[:audio.PlaybackFrameBytes-2000]) {
		t.Error("frame tail does not come from second chunk")
	}
	if got := p.Buffered(); got != 4000-audio.PlaybackFrameBytes {
		t.Errorf("Buffered = %d; want %d", got, 4000-audio.PlaybackFrameBytes)
	}
}

func TestPlaybackSource_Clear(t *testing.T) {
	t.Parallel()

	p := NewPlaybackSource()
	p.Enqueue(make([]byte, 8000))
	p.ReadFrame() // leave a partially consumed chunk
	p.Clear()

	if p.Playing() {
		t.Error("cleared source reports Playing")
	}
	if got := p.Buffered(); got != 0 {
		t.Errorf("Buffered after Clear = %d; want 0", got)
	}
}

func TestPlaybackSource_IgnoresEmptyEnqueue(t *testing.T) {
	t.Parallel()

	p := NewPlaybackSource()
	p.Enqueue(nil)
	p.Enqueue([]byte{})
	if p.Playing() {
		t.Error("source reports Playing after empty enqueues")
	}
}
