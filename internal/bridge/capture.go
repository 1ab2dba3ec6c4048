package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxcord/voxcord/internal/observe"
	"github.com/voxcord/voxcord/pkg/audio"
)

const (
	// captureBatchBytes is 100 ms of backend-format PCM per send. Batching
	// keeps the append message rate an order of magnitude below the 20 ms
	// frame rate.
	captureBatchBytes = 3200

	// decodeErrorLogCap limits per-stream decode error log lines. The error
	// counter keeps counting; only the logging stops.
	decodeErrorLogCap = 5

	// captureQueueDepth bounds the hand-off queue between the platform
	// receive path and the backend sender. A full queue drops the oldest
	// pending work by dropping the new batch; it never blocks the receiver.
	captureQueueDepth = 16
)

// Compile-time interface assertion.
var _ audio.CaptureReceiver = (*CaptureSink)(nil)

// CaptureSink receives decoded channel audio from the platform, downsamples
// it to the backend format, and batches it onto a bounded queue for the
// session's sender goroutine. Both receiver methods are push-only and return
// immediately; the audio receive path is never allowed to block on the
// network path.
type CaptureSink struct {
	guildID string
	metrics *observe.Metrics

	out chan []byte

	mu        sync.Mutex
	buf       []byte
	errCounts map[uint32]int
	closed    bool
}

// NewCaptureSink returns a sink ready to be registered with a platform
// connection.
func NewCaptureSink(guildID string, metrics *observe.Metrics) *CaptureSink {
	return &CaptureSink{
		guildID:   guildID,
		metrics:   metrics,
		out:       make(chan []byte, captureQueueDepth),
		errCounts: make(map[uint32]int),
	}
}

// Batches returns the queue of backend-format batches. The channel is closed
// by Close after any final partial batch has been flushed.
func (s *CaptureSink) Batches() <-chan []byte {
	return s.out
}

// ReceiveFrame downsamples one channel-format frame and appends it to the
// accumulation buffer, emitting full batches as the threshold is crossed.
func (s *CaptureSink) ReceiveFrame(ssrc uint32, frame audio.AudioFrame) {
	mono := audio.Downsample(frame.Data)
	if len(mono) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.buf = append(s.buf, mono...)
	for len(s.buf) >= captureBatchBytes {
		batch := make([]byte, captureBatchBytes)
		copy(batch, s.buf)
		s.buf = s.buf[captureBatchBytes:]
		s.push(batch)
	}
}

// ReceiveError records a decode failure for the stream. The first
// decodeErrorLogCap failures per stream are logged; after that the stream
// goes quiet in the logs while the metric keeps counting.
func (s *CaptureSink) ReceiveError(ssrc uint32, err error) {
	s.metrics.RecordDecodeError(context.Background(), s.guildID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCounts[ssrc]++
	count := s.errCounts[ssrc]
	if count > decodeErrorLogCap {
		return
	}

	if count == decodeErrorLogCap {
		slog.Warn("bridge: repeated decode errors, suppressing further logs for stream",
			"guild_id", s.guildID, "ssrc", ssrc, "error", err)
		return
	}
	slog.Warn("bridge: decode error", "guild_id", s.guildID, "ssrc", ssrc, "error", err)
}

// Close flushes any partial batch and closes the queue. Idempotent.
func (s *CaptureSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.buf) > 0 {
		batch := make([]byte, len(s.buf))
		copy(batch, s.buf)
		s.buf = nil
		s.push(batch)
	}
	s.closed = true
	close(s.out)
}

// push enqueues a batch without blocking, dropping it when the sender has
// fallen behind. Callers hold s.mu.
func (s *CaptureSink) push(batch []byte) {
	select {
	case s.out <- batch:
	default:
		s.metrics.RecordDroppedBatch(context.Background(), s.guildID)
		slog.Debug("bridge: capture queue full, dropping batch",
			"guild_id", s.guildID, "bytes", len(batch))
	}
}
