package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"github.com/rs/zerolog/log"
)

var errDeepgramClosed = errors.New("deepgram closed the stream")

// deepgramConn is the part of the SDK websocket client a stream drives.
type deepgramConn interface {
	Connect() bool
	WriteBinary(data []byte) error
	Stop()
}

type deepgramDialer func(ctx context.Context, cOpts *interfaces.ClientOptions, tOpts *interfaces.LiveTranscriptionOptions, cb api.LiveMessageCallback) (deepgramConn, error)

// Deepgram streams raw PCM to Deepgram's live transcription websocket through
// the SDK client. Keepalives hold the socket open while the microphone is
// paused.
type Deepgram struct {
	apiKey string
	host   string
	model  string
	dial   deepgramDialer

	// after the last frame, wait for the backend to go quiet before closing
	drainQuiet time.Duration
	drainMax   time.Duration
}

func NewDeepgram(apiKey, host, model string) *Deepgram {
	return &Deepgram{
		apiKey:     apiKey,
		host:       host,
		model:      model,
		dial:       dialDeepgram(apiKey),
		drainQuiet: time.Second,
		drainMax:   5 * time.Second,
	}
}

func dialDeepgram(apiKey string) deepgramDialer {
	return func(ctx context.Context, cOpts *interfaces.ClientOptions, tOpts *interfaces.LiveTranscriptionOptions, cb api.LiveMessageCallback) (deepgramConn, error) {
		c, err := listen.NewWebSocket(ctx, apiKey, cOpts, tOpts, cb)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Close() error { return nil }

func (d *Deepgram) options(cfg Config) (*interfaces.ClientOptions, *interfaces.LiveTranscriptionOptions) {
	cOpts := &interfaces.ClientOptions{
		EnableKeepAlive: true,
		Host:            d.host,
	}
	tOpts := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       cfg.LanguageCode,
		Punctuate:      cfg.EnablePunctuation,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     cfg.SampleRateHertz,
		InterimResults: cfg.InterimResults,
	}
	return cOpts, tOpts
}

func (d *Deepgram) StreamingRecognize(ctx context.Context, cfg Config, requests RequestSource) (ResponseStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	st := &deepgramStream{ctx: ctx, p: newPipe()}

	cOpts, tOpts := d.options(cfg)
	conn, err := d.dial(ctx, cOpts, tOpts, st)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("deepgram client: %w", err)
	}
	if !conn.Connect() {
		cancel()
		return nil, errors.New("deepgram: connect failed")
	}

	go st.pump(conn, requests, cancel, d.drainQuiet, d.drainMax)
	return st.p, nil
}

// deepgramStream receives the SDK callbacks for one live connection and
// feeds them into a pipe.
type deepgramStream struct {
	ctx      context.Context
	p        *pipe
	stopping atomic.Bool
	failed   atomic.Bool
	last     atomic.Int64 // unix nanos of the last backend message
}

func (s *deepgramStream) pump(conn deepgramConn, requests RequestSource, cancel context.CancelFunc, quiet, maxWait time.Duration) {
	defer cancel()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.stopping.Store(true)
			conn.Stop()
		})
	}
	go func() {
		<-s.ctx.Done()
		stop()
		s.p.finish(s.ctx.Err())
	}()

	for {
		req, ok := requests.Next()
		if !ok {
			break
		}
		if err := conn.WriteBinary(req.Audio); err != nil {
			stop()
			s.fail(fmt.Errorf("deepgram send: %w", err))
			return
		}
	}

	s.touch()
	s.drain(quiet, maxWait)
	stop()
	s.p.finish(nil)
}

// drain waits until no message arrived for quiet, bounded by maxWait.
func (s *deepgramStream) drain(quiet, maxWait time.Duration) {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) && !s.failed.Load() && s.ctx.Err() == nil {
		if time.Since(time.Unix(0, s.last.Load())) >= quiet {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *deepgramStream) touch() { s.last.Store(time.Now().UnixNano()) }

func (s *deepgramStream) fail(err error) {
	s.failed.Store(true)
	s.p.finish(err)
}

func (s *deepgramStream) Open(*api.OpenResponse) error {
	log.Debug().Str("backend", "deepgram").Msg("stream open")
	return nil
}

func (s *deepgramStream) Message(mr *api.MessageResponse) error {
	s.touch()
	res := Result{IsFinal: mr.IsFinal}
	for _, a := range mr.Channel.Alternatives {
		res.Alternatives = append(res.Alternatives, Alternative{Transcript: a.Transcript, Confidence: float32(a.Confidence)})
	}
	s.p.send(s.ctx, &Response{Results: []Result{res}})
	return nil
}

func (s *deepgramStream) Metadata(*api.MetadataResponse) error {
	s.touch()
	return nil
}

func (s *deepgramStream) SpeechStarted(*api.SpeechStartedResponse) error {
	s.touch()
	return nil
}

func (s *deepgramStream) UtteranceEnd(*api.UtteranceEndResponse) error {
	s.touch()
	return nil
}

func (s *deepgramStream) Close(*api.CloseResponse) error {
	if !s.stopping.Load() {
		s.fail(errDeepgramClosed)
	}
	return nil
}

func (s *deepgramStream) Error(er *api.ErrorResponse) error {
	s.fail(fmt.Errorf("deepgram %s: %s", er.Type, er.Description))
	return nil
}

func (s *deepgramStream) UnhandledEvent(data []byte) error {
	log.Debug().Str("backend", "deepgram").Bytes("data", data).Msg("unhandled event")
	return nil
}
