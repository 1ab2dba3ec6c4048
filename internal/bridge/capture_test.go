package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxcord/voxcord/internal/observe"
	"github.com/voxcord/voxcord/pkg/audio"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func metricValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// stereoFrame builds one channel-format frame whose downsampled form is a
// run of identical samples.
func stereoFrame(sample int16, bytes int) audio.AudioFrame {
	data := make([]byte, bytes)
	for i := 0; i < len(data); i += 2 {
		data[i] = byte(sample)
		data[i+1] = byte(sample >> 8)
	}
	return audio.AudioFrame{
		Data:       data,
		SampleRate: audio.ChannelFormat.SampleRate,
		Channels:   audio.ChannelFormat.Channels,
	}
}

func TestCaptureSink_BatchesAtThreshold(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	s := NewCaptureSink("g1", m)

	// One 3840-byte stereo frame downsamples to 640 mono bytes; five frames
	// reach exactly one 3200-byte batch.
	for range 4 {
		s.ReceiveFrame(1, stereoFrame(100, audio.PlaybackFrameBytes))
	}
	select {
	case batch := <-s.Batches():
		t.Fatalf("batch of %d bytes emitted below threshold", len(batch))
	default:
	}

	s.ReceiveFrame(1, stereoFrame(100, audio.PlaybackFrameBytes))
	select {
	case batch := <-s.Batches():
		if len(batch) != captureBatchBytes {
			t.Errorf("batch = %d bytes; want %d", len(batch), captureBatchBytes)
		}
		// Constant stereo 100s average to constant mono 100s.
		want := bytes.Repeat([]byte{100, 0}, captureBatchBytes/2)
		if !bytes.Equal(batch, want) {
			t.Error("batch content does not match downsampled input")
		}
	default:
		t.Fatal("no batch emitted at threshold")
	}
}

func TestCaptureSink_CloseFlushesRemainder(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	s := NewCaptureSink("g1", m)

	// Two frames leave 1280 mono bytes buffered, below threshold.
	s.ReceiveFrame(1, stereoFrame(7, audio.PlaybackFrameBytes))
	s.ReceiveFrame(1, stereoFrame(7, audio.PlaybackFrameBytes))
	s.Close()

	batch, ok := <-s.Batches()
	if !ok {
		t.Fatal("queue closed without flushing remainder")
	}
	if len(batch) != 1280 {
		t.Errorf("flushed batch = %d bytes; want 1280", len(batch))
	}
	if _, ok := <-s.Batches(); ok {
		t.Error("queue not closed after flush")
	}

	// Idempotent, and frames after Close are ignored.
	s.Close()
	s.ReceiveFrame(1, stereoFrame(7, audio.PlaybackFrameBytes))
}

func TestCaptureSink_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	s := NewCaptureSink("g1", m)

	// Fill the queue past capacity without draining. Five frames per batch.
	for range (captureQueueDepth + 3) * 5 {
		s.ReceiveFrame(1, stereoFrame(42, audio.PlaybackFrameBytes))
	}

	queued := 0
	for {
		select {
		case <-s.Batches():
			queued++
			continue
		default:
		}
		break
	}
	if queued != captureQueueDepth {
		t.Errorf("queued batches = %d; want %d", queued, captureQueueDepth)
	}
	if got := metricValue(t, reader, "voxcord.audio.dropped.batches"); got != 3 {
		t.Errorf("dropped batches metric = %d; want 3", got)
	}
}

func TestCaptureSink_DecodeErrorLogThrottle(t *testing.T) {
	// Swaps the default logger; must not run in parallel.
	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	m, reader := newTestMetrics(t)
	s := NewCaptureSink("g1", m)

	decodeErr := errors.New("corrupt packet")
	for range 9 {
		s.ReceiveError(77, decodeErr)
	}
	// A second stream gets its own log budget.
	s.ReceiveError(78, decodeErr)

	logged := strings.Count(buf.String(), "decode error")
	if logged != decodeErrorLogCap+1 {
		t.Errorf("decode error log lines = %d; want %d", logged, decodeErrorLogCap+1)
	}
	if !strings.Contains(buf.String(), "suppressing") {
		t.Error("missing suppression notice after repeated errors")
	}
	if got := metricValue(t, reader, "voxcord.audio.decode.errors"); got != 10 {
		t.Errorf("decode errors metric = %d; want 10", got)
	}
}
