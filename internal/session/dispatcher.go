package session

import (
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/scribe/internal/metrics"
	"github.com/obiente/translate/scribe/internal/recognizer"
)

// Dispatcher consumes one recognition stream, forwards every transcript to
// the owning connection and collects the finals in arrival order. It is
// driven by a single goroutine; Finals must only be read after Run returns.
type Dispatcher struct {
	emitter Emitter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	finals  []string
}

func NewDispatcher(emitter Emitter, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{emitter: emitter, logger: logger, metrics: m}
}

// Run reads stream until it ends. It returns nil on normal completion and a
// *StreamError after notifying the client when the stream fails.
func (d *Dispatcher) Run(stream recognizer.ResponseStream) error {
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return d.Fail(err)
		}
		d.Handle(resp)
	}
}

// Handle processes a single response. Responses without a result or an
// alternative are ignored.
func (d *Dispatcher) Handle(resp *recognizer.Response) {
	if resp == nil || len(resp.Results) == 0 || len(resp.Results[0].Alternatives) == 0 {
		return
	}
	res := resp.Results[0]
	text := res.Alternatives[0].Transcript

	if err := d.emitter.TranscriptUpdate(text, res.IsFinal); err != nil {
		d.logger.Debug().Err(err).Msg("transcript update not delivered")
	}

	if !res.IsFinal {
		d.metrics.Transcripts.WithLabelValues("interim").Inc()
		return
	}
	d.metrics.Transcripts.WithLabelValues("final").Inc()
	if strings.TrimSpace(text) == "" {
		return
	}
	d.finals = append(d.finals, text)
	d.logger.Debug().Str("text", text).Int("finals", len(d.finals)).Msg("final transcript")
}

// Fail reports err to the client and wraps it as a *StreamError.
func (d *Dispatcher) Fail(err error) error {
	se := newStreamError(err)
	d.metrics.StreamErrors.Inc()
	d.logger.Error().Err(err).Bool("quota", se.Quota).Msg("recognition stream failed")
	if emitErr := d.emitter.TranscriptError(se.ClientMessage()); emitErr != nil {
		d.logger.Debug().Err(emitErr).Msg("transcript error not delivered")
	}
	return se
}

func (d *Dispatcher) Finals() []string {
	return d.finals
}
