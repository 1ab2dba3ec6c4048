// Package realtime implements the client side of OpenAI's Realtime
// speech-to-speech protocol over a persistent WebSocket.
//
// A [Session] owns one connection and its protocol state machine:
//
//	Idle → Connecting → Configuring → Active → Closing → Closed
//
// with an absorbing Failed state reachable from Connecting/Configuring when
// the handshake is rejected. Audio travels as base64-encoded PCM16 inside
// JSON text frames: 16 kHz mono outbound via input_audio_buffer.append,
// and response.audio.delta events inbound, which the session re-slices into
// fixed [ResponseChunkBytes] chunks before delivery so downstream consumers
// see uniform chunk sizes regardless of how the backend fragments its
// deltas.
//
// Handshake and configuration failures are reported synchronously from
// [Session.Connect] and are never retried; a mid-session transport failure
// surfaces only as termination of the receive loop, observable via
// [Session.Done] and [Session.Err].
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultVoice   = "alloy"

	// ResponseChunkBytes is the fixed size of audio chunks delivered to the
	// audio handler: 3200 bytes = 100 ms of 16 kHz mono PCM16. The flush on
	// response.audio.done may be smaller.
	ResponseChunkBytes = 3200

	// readIdleTimeout bounds the wait for a single transport message. Hitting
	// it is not an error: the session sends a keepalive ping and waits again.
	readIdleTimeout = 60 * time.Second

	// pingTimeout bounds a single keepalive round trip.
	pingTimeout = 10 * time.Second
)

// ErrMissingCredential is returned by [Session.Connect] when no API key was
// configured. Reported synchronously; the connect attempt is not retried.
var ErrMissingCredential = errors.New("realtime: missing API credential")

// State is a phase of the session lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateClosing
	StateClosed
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TurnDetection configures the backend's server-side voice activity
// detection, which decides where utterances end.
type TurnDetection struct {
	// Threshold is the activation threshold in [0,1]; higher values require
	// louder speech.
	Threshold float64

	// PrefixPaddingMS is audio to include before detected speech starts.
	PrefixPaddingMS int

	// SilenceDurationMS is the silence that ends an utterance.
	SilenceDurationMS int
}

// Config carries everything a session needs at connect time. Nothing is read
// from ambient process state; the caller supplies all of it.
type Config struct {
	// APIKey is the bearer credential. Required.
	APIKey string

	// Model selects the realtime model. Defaults to gpt-4o-realtime-preview.
	Model string

	// BaseURL overrides the WebSocket endpoint, primarily for tests.
	BaseURL string

	// Voice selects the synthesised voice identity. Defaults to "alloy".
	Voice string

	// Instructions is the system-level behavioural prompt.
	Instructions string

	// TurnDetection tunes server VAD. Zero values select the defaults
	// (threshold 0.5, prefix 300 ms, silence 500 ms).
	TurnDetection TurnDetection
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Voice == "" {
		c.Voice = defaultVoice
	}
	if c.TurnDetection.Threshold == 0 {
		c.TurnDetection.Threshold = 0.5
	}
	if c.TurnDetection.PrefixPaddingMS == 0 {
		c.TurnDetection.PrefixPaddingMS = 300
	}
	if c.TurnDetection.SilenceDurationMS == 0 {
		c.TurnDetection.SilenceDurationMS = 500
	}
	return c
}

// Transcript is one observational text line demultiplexed from the event
// stream. Transcripts never affect control flow.
type Transcript struct {
	// Role is "assistant" for synthesised replies, "user" for recognised
	// participant speech.
	Role string

	// Text is the complete transcript line.
	Text string
}

// Session is one realtime connection. Create with [NewSession], register
// handlers, then call [Session.Connect]. All exported methods are safe for
// concurrent use; handlers must be registered before Connect.
type Session struct {
	cfg Config

	mu           sync.Mutex
	conn         *websocket.Conn
	onAudio      func(chunk []byte)
	onTranscript func(t Transcript)
	loopStarted  bool
	closed       bool
	errVal       error

	state atomic.Int32

	// replying tracks the backend's reply-in-progress window between
	// response.created and response.done.
	replying atomic.Bool

	// Receive-loop-owned accumulation state. Not shared.
	respBuf []byte
	txText  string

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates an unconnected session for cfg.
func NewSession(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// OnAudio registers the handler that receives fixed-size PCM chunks of the
// backend's spoken reply (16 kHz mono). Must be called before Connect.
func (s *Session) OnAudio(h func(chunk []byte)) {
	s.mu.Lock()
	s.onAudio = h
	s.mu.Unlock()
}

// OnTranscript registers an optional handler for transcript lines. Must be
// called before Connect.
func (s *Session) OnTranscript(h func(t Transcript)) {
	s.mu.Lock()
	s.onTranscript = h
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Replying reports whether the backend is mid-reply.
func (s *Session) Replying() bool {
	return s.replying.Load()
}

// Done returns a channel closed when the receive loop has terminated (or,
// for a session that never reached Active, when Close is called).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error that ended the receive loop, or nil for a
// clean shutdown. Meaningful only after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Connect dials the endpoint, performs the session.update configuration
// handshake, and starts the background receive loop. It fails fast — no
// retries — returning ErrMissingCredential or a wrapped dial/handshake
// error, and leaves the session in the absorbing Failed state on failure.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("realtime: connect from state %s", s.State())
	}

	if s.cfg.APIKey == "" {
		s.state.Store(int32(StateFailed))
		return ErrMissingCredential
	}

	wsURL := fmt.Sprintf("%s?model=%s", s.cfg.BaseURL, s.cfg.Model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + s.cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		s.state.Store(int32(StateFailed))
		return fmt.Errorf("realtime: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.state.Store(int32(StateConfiguring))
	if err := s.sendSessionUpdate(); err != nil {
		s.state.Store(int32(StateFailed))
		conn.Close(websocket.StatusInternalError, "session update failed")
		return fmt.Errorf("realtime: configure: %w", err)
	}

	s.state.Store(int32(StateActive))
	s.mu.Lock()
	s.loopStarted = true
	s.mu.Unlock()
	go s.receiveLoop(conn)

	slog.Info("realtime: session active", "model", s.cfg.Model, "voice", s.cfg.Voice)
	return nil
}

// SendAudio encodes one chunk of 16 kHz mono PCM16 and emits an
// input_audio_buffer.append event. Outside Active it is a silent no-op, and
// write failures are logged rather than returned: this path is fed from the
// audio side of the bridge and must never stall or raise there.
func (s *Session) SendAudio(pcm []byte) {
	if s.State() != StateActive || len(pcm) == 0 {
		return
	}
	msg := appendAudioEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
	if err := s.writeJSON(msg); err != nil {
		slog.Warn("realtime: send audio", "error", err)
	}
}

// CommitAudio signals end-of-utterance and asks the backend to generate a
// reply. Same preconditions as SendAudio: a silent no-op outside Active.
func (s *Session) CommitAudio() {
	if s.State() != StateActive {
		return
	}
	if err := s.writeJSON(typeOnlyEvent{Type: "input_audio_buffer.commit"}); err != nil {
		slog.Warn("realtime: commit audio", "error", err)
		return
	}
	if err := s.writeJSON(typeOnlyEvent{Type: "response.create"}); err != nil {
		slog.Warn("realtime: request response", "error", err)
	}
}

// Close cancels the receive loop, awaits its termination, and closes the
// transport. Idempotent and safe from any state, including before Connect
// and after the loop has already ended.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	loopStarted := s.loopStarted
	s.mu.Unlock()

	if s.State() != StateFailed {
		s.state.Store(int32(StateClosing))
	}

	s.cancel()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	if loopStarted {
		<-s.done
	} else {
		s.doneOnce.Do(func() { close(s.done) })
	}

	if s.State() != StateFailed {
		s.state.Store(int32(StateClosed))
	}
	return nil
}

// ── Outbound protocol messages ────────────────────────────────────────────────

type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string            `json:"modalities"`
	Voice                   string              `json:"voice"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionModel `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionParam `json:"turn_detection,omitempty"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetectionParam struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type appendAudioEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type typeOnlyEvent struct {
	Type string `json:"type"`
}

// ── Inbound protocol messages ─────────────────────────────────────────────────

// serverEvent is the superset decode target for every inbound event tag.
type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// sendSessionUpdate performs the configuration handshake: audio formats,
// voice, instructions, input transcription, and server VAD thresholds.
func (s *Session) sendSessionUpdate() error {
	return s.writeJSON(sessionUpdateEvent{
		Type: "session.update",
		Session: sessionParams{
			Modalities:              []string{"text", "audio"},
			Voice:                   s.cfg.Voice,
			Instructions:            s.cfg.Instructions,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionModel{Model: "whisper-1"},
			TurnDetection: &turnDetectionParam{
				Type:              "server_vad",
				Threshold:         s.cfg.TurnDetection.Threshold,
				PrefixPaddingMS:   s.cfg.TurnDetection.PrefixPaddingMS,
				SilenceDurationMS: s.cfg.TurnDetection.SilenceDurationMS,
			},
		},
	})
}

// writeJSON marshals v and writes it as one text frame. The connection
// serialises concurrent writers internally.
func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// receiveLoop reads transport messages until closure. Reads are pumped
// through an internal channel so the bounded idle wait can fire without
// poisoning the in-flight Read: an idle period is a keepalive ping, not an
// error. Transport closure terminates the loop and marks the session Closed.
func (s *Session) receiveLoop(conn *websocket.Conn) {
	defer func() {
		s.doneOnce.Do(func() { close(s.done) })
		if s.State() != StateFailed {
			s.state.Store(int32(StateClosed))
		}
	}()

	msgs := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(s.ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-s.ctx.Done():
				return
			}
		}
	}()

	idle := time.NewTimer(readIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-readErr:
			if s.ctx.Err() == nil {
				s.setErr(err)
				slog.Info("realtime: transport closed", "error", err)
			}
			return

		case data := <-msgs:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(readIdleTimeout)
			s.handleMessage(data)

		case <-idle.C:
			// No traffic within the bounded wait: keepalive, not an error.
			go s.ping(conn)
			idle.Reset(readIdleTimeout)
		}
	}
}

func (s *Session) ping(conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil && s.ctx.Err() == nil {
		slog.Debug("realtime: keepalive ping", "error", err)
	}
}

// handleMessage decodes one transport message and dispatches it by tag.
// A malformed message is logged and skipped; the loop continues.
func (s *Session) handleMessage(data []byte) {
	var evt serverEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		slog.Warn("realtime: malformed server message, skipping", "error", err)
		return
	}

	switch evt.Type {
	case "error":
		// Non-fatal to the session unless the transport itself closes.
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		slog.Warn("realtime: backend error event", "message", msg)

	case "session.created":
		slog.Debug("realtime: session created")

	case "session.updated":
		slog.Debug("realtime: session configuration acknowledged")

	case "response.created":
		s.replying.Store(true)

	case "response.done":
		s.replying.Store(false)

	case "response.audio.delta":
		s.handleAudioDelta(evt.Delta)

	case "response.audio.done":
		s.flushAudio()

	case "response.audio_transcript.delta":
		s.txText += evt.Delta

	case "response.audio_transcript.done":
		text := s.txText
		s.txText = ""
		if text != "" {
			s.emitTranscript(Transcript{Role: "assistant", Text: text})
		}

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript != "" {
			s.emitTranscript(Transcript{Role: "user", Text: evt.Transcript})
		}

	case "input_audio_buffer.speech_started":
		slog.Debug("realtime: speech detected")

	case "input_audio_buffer.speech_stopped":
		// Server VAD reports end of utterance; request a reply. This is the
		// only outbound action the session takes on its own.
		if err := s.writeJSON(typeOnlyEvent{Type: "response.create"}); err != nil {
			slog.Warn("realtime: request response after speech stop", "error", err)
		}

	case "rate_limits.updated":
		slog.Debug("realtime: rate limits updated")
	}
}

// handleAudioDelta appends decoded delta audio to the accumulation buffer
// and slices off uniform ResponseChunkBytes chunks while the buffer stays
// over threshold.
func (s *Session) handleAudioDelta(delta string) {
	if delta == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(delta)
	if err != nil || len(pcm) == 0 {
		if err != nil {
			slog.Warn("realtime: undecodable audio delta, skipping", "error", err)
		}
		return
	}

	s.respBuf = append(s.respBuf, pcm...)
	for len(s.respBuf) >= ResponseChunkBytes {
		chunk := make([]byte, ResponseChunkBytes)
		copy(chunk, s.respBuf)
		s.respBuf = s.respBuf[ResponseChunkBytes:]
		s.emitAudio(chunk)
	}
}

// flushAudio delivers any sub-threshold remainder and clears the buffer.
func (s *Session) flushAudio() {
	if len(s.respBuf) == 0 {
		return
	}
	chunk := make([]byte, len(s.respBuf))
	copy(chunk, s.respBuf)
	s.respBuf = nil
	s.emitAudio(chunk)
}

func (s *Session) emitAudio(chunk []byte) {
	s.mu.Lock()
	h := s.onAudio
	s.mu.Unlock()
	if h != nil {
		h(chunk)
	}
}

func (s *Session) emitTranscript(t Transcript) {
	s.mu.Lock()
	h := s.onTranscript
	s.mu.Unlock()
	if h != nil {
		h(t)
	}
}
