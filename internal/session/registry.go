package session

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/scribe/internal/metrics"
)

// Registry maps connection ids to their live session. It lives as long as
// the server: create it before accepting connections and call Shutdown after
// the listener has stopped.
type Registry struct {
	opts   *Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	conns    map[string]Emitter
	sessions map[string]*Session
	closing  bool
}

func NewRegistry(opts Options) *Registry {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:     &opts,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]Emitter),
		sessions: make(map[string]*Session),
	}
}

// Connect registers a connection and allocates its first session.
func (r *Registry) Connect(id string, emitter Emitter) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, ErrShuttingDown
	}
	if _, ok := r.conns[id]; ok {
		return nil, ErrSessionExists
	}
	r.conns[id] = emitter
	s := r.newSessionLocked(id, emitter)
	log.Debug().Str("conn_id", id).Msg("connection registered")
	return s, nil
}

func (r *Registry) newSessionLocked(id string, emitter Emitter) *Session {
	s := New(id, emitter, r.opts)
	s.tracker = &r.wg
	s.onClose = r.remove
	r.sessions[id] = s
	return s
}

// Start begins streaming for the connection. A connection whose previous
// session already closed gets a fresh one.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return ErrShuttingDown
	}
	s, ok := r.sessions[id]
	if !ok {
		emitter, connected := r.conns[id]
		if !connected {
			return ErrNoSession
		}
		s = r.newSessionLocked(id, emitter)
	}
	return s.Start(r.ctx)
}

// Feed queues a frame on the connection's live session.
func (r *Registry) Feed(id string, frame []byte) error {
	s, ok := r.Get(id)
	if !ok {
		r.opts.Metrics.FramesDropped.WithLabelValues("no_session").Inc()
		return ErrNoSession
	}
	return s.Feed(frame)
}

// Stop ends the connection's live session. Stopping a connection without a
// live session is a no-op.
func (r *Registry) Stop(id string) {
	if s, ok := r.Get(id); ok {
		s.Stop()
	}
}

// Disconnect forgets the connection and stops its session as if Stop had
// been called.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	s, ok := r.sessions[id]
	r.mu.Unlock()

	log.Debug().Str("conn_id", id).Bool("live_session", ok).Msg("connection dropped")
	if ok {
		s.Stop()
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
}

// Shutdown stops every session and waits for their workers to drain. If ctx
// expires first, in-flight backend calls are cancelled and ctx.Err() is
// returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	log.Info().Int("sessions", len(live)).Msg("draining sessions")
	for _, s := range live {
		s.Stop()
	}

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		r.cancel()
		return nil
	case <-ctx.Done():
		log.Warn().Msg("drain timed out, cancelling recognition streams")
		r.cancel()
		return ctx.Err()
	}
}
