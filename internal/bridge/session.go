package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxcord/voxcord/internal/observe"
	"github.com/voxcord/voxcord/pkg/audio"
	"github.com/voxcord/voxcord/pkg/realtime"
)

// Notifier receives human-readable session notices (transcripts, unexpected
// backend termination) for display wherever the deployment wants them, such
// as a guild text channel. Implementations must not block.
type Notifier interface {
	Notify(guildID, text string)
}

// Status is a point-in-time snapshot of one bridge session.
type Status struct {
	GuildID          string
	ChannelID        string
	BackendState     realtime.State
	Replying         bool
	CaptureEnabled   bool
	BufferedPlayback int // bytes of reply audio queued for the channel
	Uptime           time.Duration
}

// VoiceSession is one live bridge between a voice channel connection and a
// backend session. Created and owned by [Registry]; use [Registry.Connect].
type VoiceSession struct {
	guildID   string
	channelID string

	conn     audio.Connection
	rt       *realtime.Session
	playback *PlaybackSource
	capture  *CaptureSink

	metrics  *observe.Metrics
	notifier Notifier

	// onFatal is invoked (on its own goroutine) when the backend session
	// terminates outside an orderly Stop. Set by the registry before start.
	onFatal func()

	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopErr   error
}

func newVoiceSession(guildID, channelID string, conn audio.Connection, rt *realtime.Session, metrics *observe.Metrics, notifier Notifier) *VoiceSession {
	return &VoiceSession{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
		rt:        rt,
		playback:  NewPlaybackSource(),
		metrics:   metrics,
		notifier:  notifier,
	}
}

// start connects the backend session and wires both audio directions. On
// error nothing is left running; the caller still owns the platform
// connection and must tear it down.
func (s *VoiceSession) start(ctx context.Context) error {
	s.rt.OnAudio(func(chunk []byte) {
		stereo := audio.Upsample(chunk)
		s.playback.Enqueue(stereo)
		s.metrics.RecordPlaybackAudio(context.Background(), s.guildID, len(stereo))
	})
	if s.notifier != nil {
		s.rt.OnTranscript(func(t realtime.Transcript) {
			s.notifier.Notify(s.guildID, "**"+t.Role+":** "+t.Text)
		})
	}

	if err := s.rt.Connect(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.conn.Play(s.playback)

	if s.conn.CaptureSupported() {
		s.capture = NewCaptureSink(s.guildID, s.metrics)
		s.conn.OnCapture(s.capture)
		s.wg.Add(1)
		go s.forwardCapture()
	} else {
		slog.Info("bridge: capture unsupported, running playback-only",
			"guild_id", s.guildID, "channel_id", s.channelID)
	}

	s.wg.Add(1)
	go s.watchBackend(runCtx)

	s.startedAt = time.Now()
	slog.Info("bridge: session started",
		"guild_id", s.guildID, "channel_id", s.channelID,
		"capture", s.capture != nil)
	return nil
}

// forwardCapture drains capture batches into the backend session. This is
// the only goroutine that touches the network with captured audio; the
// platform receive path just fills the queue.
func (s *VoiceSession) forwardCapture() {
	defer s.wg.Done()
	for batch := range s.capture.Batches() {
		s.rt.SendAudio(batch)
		s.metrics.RecordCapturedAudio(context.Background(), s.guildID, len(batch))
	}
}

// watchBackend surfaces an unexpected backend termination and triggers the
// session's teardown through onFatal. During an orderly Stop the run context
// is cancelled first, so nothing happens. onFatal runs on a fresh goroutine
// because teardown waits for this one to exit.
func (s *VoiceSession) watchBackend(runCtx context.Context) {
	defer s.wg.Done()
	select {
	case <-runCtx.Done():
	case <-s.rt.Done():
		if runCtx.Err() != nil {
			return
		}
		slog.Warn("bridge: backend session ended",
			"guild_id", s.guildID, "error", s.rt.Err())
		if s.notifier != nil {
			s.notifier.Notify(s.guildID, "Voice session ended: backend connection closed.")
		}
		if s.onFatal != nil {
			go s.onFatal()
		}
	}
}

// Commit flushes the current utterance and asks the backend for a reply now,
// without waiting for voice activity detection.
func (s *VoiceSession) Commit() {
	s.rt.CommitAudio()
}

// Status returns a snapshot of the session.
func (s *VoiceSession) Status() Status {
	return Status{
		GuildID:          s.guildID,
		ChannelID:        s.channelID,
		BackendState:     s.rt.State(),
		Replying:         s.rt.Replying(),
		CaptureEnabled:   s.capture != nil,
		BufferedPlayback: s.playback.Buffered(),
		Uptime:           time.Since(s.startedAt),
	}
}

// Stop tears the session down in reverse start order: stop feeding the
// channel, stop capturing, close the backend session, leave the channel.
// Best-effort and idempotent; all teardown errors are joined.
func (s *VoiceSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		s.conn.Play(nil)
		s.conn.OnCapture(nil)
		if s.capture != nil {
			s.capture.Close()
		}

		rtErr := s.rt.Close()
		discErr := s.conn.Disconnect()

		s.wg.Wait()
		s.playback.Clear()

		s.stopErr = errors.Join(rtErr, discErr)
		slog.Info("bridge: session stopped", "guild_id", s.guildID)
	})
	return s.stopErr
}
