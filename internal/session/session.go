// Package session owns the per-connection streaming transcription lifecycle:
// the audio queue, the recognition worker, transcript fan-out and the report
// written when a session closes.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/scribe/internal/audio"
	"github.com/obiente/translate/scribe/internal/metrics"
	"github.com/obiente/translate/scribe/internal/recognizer"
)

type State int32

const (
	StateCreated State = iota
	StateStreaming
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options are shared by every session of a registry.
type Options struct {
	Recognizer      recognizer.Recognizer
	StreamConfig    recognizer.Config
	Reports         ReportWriter
	Metrics         *metrics.Metrics
	QueueWarnFrames int
	Now             func() time.Time
}

// Session is one client's audio-to-transcript flow. Frames fed before Start
// are buffered and sent once streaming begins; frames fed after Stop are
// dropped.
type Session struct {
	id      string
	opts    *Options
	emitter Emitter
	buf     *audio.Buffer
	logger  zerolog.Logger

	// set by the registry
	tracker *sync.WaitGroup
	onClose func(*Session)

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	startedAt time.Time
	warned    bool

	done   chan struct{}
	err    error
	finals []string
	report string
}

// New creates a session in the created state.
func New(id string, emitter Emitter, opts *Options) *Session {
	return &Session{
		id:      id,
		opts:    opts,
		emitter: emitter,
		buf:     audio.NewBuffer(),
		logger:  log.With().Str("conn_id", id).Logger(),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the recognition stream on a background worker. A second call
// is rejected without starting another worker.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStreaming:
		s.logger.Warn().Msg("start ignored: session already streaming")
		return ErrAlreadyStarted
	case StateStopping:
		return ErrStopping
	case StateClosed:
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.startedAt = s.now()
	s.opts.Metrics.SessionsActive.Inc()
	s.opts.Metrics.SessionsTotal.Inc()
	if s.tracker != nil {
		s.tracker.Add(1)
	}
	s.logger.Info().Str("backend", s.opts.Recognizer.Name()).Int("buffered", s.buf.Len()).Msg("session started")

	go s.run(ctx)
	return nil
}

// Feed queues an audio frame. It never blocks.
func (s *Session) Feed(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated && s.state != StateStreaming {
		s.opts.Metrics.FramesDropped.WithLabelValues("stopped").Inc()
		s.logger.Debug().Int("bytes", len(frame)).Str("state", s.state.String()).Msg("dropping frame")
		return ErrNotStreaming
	}
	if !s.buf.Push(frame) {
		s.opts.Metrics.FramesDropped.WithLabelValues("stopped").Inc()
		return ErrNotStreaming
	}
	s.opts.Metrics.FramesReceived.Inc()

	if warn := s.opts.QueueWarnFrames; warn > 0 && !s.warned {
		if n := s.buf.Len(); n >= warn {
			s.warned = true
			s.logger.Warn().Int("queued", n).Msg("audio queue is backing up")
		}
	}
	return nil
}

// Stop ends the audio stream. It returns true for the call that actually
// initiated the stop; later calls are no-ops. A session that was never
// started closes immediately.
func (s *Session) Stop() bool {
	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.state = StateClosed
		s.mu.Unlock()
		if n := s.buf.Discard(); n > 0 {
			s.opts.Metrics.FramesDropped.WithLabelValues("never_started").Add(float64(n))
		}
		s.logger.Info().Msg("session closed before start")
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.done)
		return true
	case StateStreaming:
		s.state = StateStopping
		s.buf.End()
		s.mu.Unlock()
		s.logger.Info().Int("queued", s.buf.Len()).Msg("session stopping")
		return true
	default:
		s.mu.Unlock()
		return false
	}
}

// Done is closed once the session reached the closed state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is closed. It returns nil when the stream
// completed normally and a *StreamError when it failed.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finals returns the accumulated final transcripts. Valid after Done.
func (s *Session) Finals() []string {
	<-s.done
	return s.finals
}

// Report returns the name of the written report, if any. Valid after Done.
func (s *Session) Report() string {
	<-s.done
	return s.report
}

func (s *Session) run(ctx context.Context) {
	d := NewDispatcher(s.emitter, s.logger, s.opts.Metrics)
	bridge := recognizer.NewBridge(s.buf)

	var err error
	stream, openErr := s.opts.Recognizer.StreamingRecognize(ctx, s.opts.StreamConfig, bridge)
	if openErr != nil {
		err = d.Fail(openErr)
	} else {
		err = d.Run(stream)
	}
	s.finish(d.Finals(), bridge, err)
}

func (s *Session) finish(finals []string, bridge *recognizer.Bridge, err error) {
	if n := s.buf.Discard(); n > 0 {
		s.opts.Metrics.FramesDropped.WithLabelValues("stream_ended").Add(float64(n))
	}

	var report string
	if len(finals) > 0 && s.opts.Reports != nil {
		name, werr := s.opts.Reports.Write(s.now(), s.id, finals)
		if werr != nil {
			s.opts.Metrics.ReportErrors.Inc()
			s.logger.Error().Err(werr).Int("finals", len(finals)).Msg("report write failed")
		} else {
			report = name
			s.opts.Metrics.ReportsWritten.Inc()
			s.logger.Info().Str("report", name).Int("finals", len(finals)).Msg("report written")
			if emitErr := s.emitter.ReportSaved(name); emitErr != nil {
				s.logger.Debug().Err(emitErr).Msg("report notice not delivered")
			}
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.finals = finals
	s.report = report
	s.err = err
	elapsed := s.now().Sub(s.startedAt)
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.opts.Metrics.SessionsActive.Dec()
	s.opts.Metrics.SessionDuration.Observe(elapsed.Seconds())
	s.logger.Info().Int("frames_sent", bridge.Count()).Bool("audio_drained", bridge.Finished()).Int("finals", len(finals)).Dur("elapsed", elapsed).AnErr("stream_error", err).Msg("session closed")

	if s.onClose != nil {
		s.onClose(s)
	}
	close(s.done)
	if s.tracker != nil {
		s.tracker.Done()
	}
}

func (s *Session) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now()
}
