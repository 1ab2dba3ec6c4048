package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voxcord/voxcord/internal/observe"
	"github.com/voxcord/voxcord/pkg/audio"
	"github.com/voxcord/voxcord/pkg/realtime"
)

// Registry owns at most one [VoiceSession] per guild and serialises all
// lifecycle transitions, so concurrent join and leave commands cannot race
// a session into a half-built state.
type Registry struct {
	platform   audio.Platform
	backendCfg realtime.Config
	metrics    *observe.Metrics
	notifier   Notifier

	mu       sync.Mutex
	sessions map[string]*VoiceSession
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier installs the notice sink passed to every session.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a registry that joins channels through platform and
// connects backend sessions with backendCfg.
func NewRegistry(platform audio.Platform, backendCfg realtime.Config, opts ...Option) *Registry {
	r := &Registry{
		platform:   platform,
		backendCfg: backendCfg,
		sessions:   make(map[string]*VoiceSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Connect brings up a bridge session for the guild. Idempotent: when the
// guild already has a session it is returned unchanged, regardless of the
// requested channel. When the backend handshake fails after the channel was
// joined, the join is undone so no half-connected session lingers. A session
// whose backend connection later dies is evicted and torn down on its own,
// so the next Connect for the guild starts fresh.
func (r *Registry) Connect(ctx context.Context, guildID, channelID string) (*VoiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[guildID]; ok {
		return existing, nil
	}

	start := time.Now()

	conn, err := r.platform.Connect(ctx, guildID, channelID)
	if err != nil {
		r.metrics.RecordConnect(ctx, time.Since(start).Seconds(), "error")
		return nil, fmt.Errorf("bridge: connect guild %q: %w", guildID, err)
	}

	rt := realtime.NewSession(r.backendCfg)
	vs := newVoiceSession(guildID, channelID, conn, rt, r.metrics, r.notifier)
	vs.onFatal = func() { r.reap(vs) }
	if err := vs.start(ctx); err != nil {
		// Undo the channel join so failure leaves no trace.
		if derr := conn.Disconnect(); derr != nil {
			err = errors.Join(err, derr)
		}
		r.metrics.RecordConnect(ctx, time.Since(start).Seconds(), "error")
		return nil, fmt.Errorf("bridge: start session guild %q: %w", guildID, err)
	}

	r.sessions[guildID] = vs
	r.metrics.ActiveSessions.Add(ctx, 1)
	r.metrics.RecordConnect(ctx, time.Since(start).Seconds(), "ok")
	return vs, nil
}

// reap removes and stops a session whose backend terminated on its own, so
// the guild is not left joined to the voice channel with a dead backend.
// Runs on the session's watcher path; no-op when the session was already
// removed or replaced.
func (r *Registry) reap(vs *VoiceSession) {
	r.mu.Lock()
	current, ok := r.sessions[vs.guildID]
	if !ok || current != vs {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, vs.guildID)
	r.metrics.ActiveSessions.Add(context.Background(), -1)
	r.mu.Unlock()

	if err := vs.Stop(); err != nil {
		slog.Warn("bridge: teardown after backend loss",
			"guild_id", vs.guildID, "error", err)
	}
}

// Disconnect stops and removes the guild's session. A guild without a
// session is a no-op.
func (r *Registry) Disconnect(ctx context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vs, ok := r.sessions[guildID]
	if !ok {
		return nil
	}
	delete(r.sessions, guildID)
	r.metrics.ActiveSessions.Add(ctx, -1)
	return vs.Stop()
}

// Session returns the guild's live session, if any.
func (r *Registry) Session(guildID string) (*VoiceSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.sessions[guildID]
	return vs, ok
}

// Statuses returns snapshots of all live sessions, ordered by guild ID.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.sessions))
	for _, vs := range r.sessions {
		out = append(out, vs.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// DisconnectAll stops every session, joining any teardown errors. Used
// during shutdown.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for guildID, vs := range r.sessions {
		if err := vs.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("guild %q: %w", guildID, err))
		}
		delete(r.sessions, guildID)
		r.metrics.ActiveSessions.Add(ctx, -1)
	}
	return errors.Join(errs...)
}
