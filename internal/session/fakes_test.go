package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obiente/translate/scribe/internal/metrics"
	"github.com/obiente/translate/scribe/internal/recognizer"
	"github.com/obiente/translate/scribe/internal/report"
)

var testNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

// echoRecognizer answers every audio frame with a final transcript holding
// the frame's bytes as text.
type echoRecognizer struct {
	openErr   error
	failAfter int
	failErr   error
	hold      bool // ignore end of audio until ctx is cancelled

	mu    sync.Mutex
	calls int
}

func (r *echoRecognizer) Name() string { return "echo" }

func (r *echoRecognizer) Close() error { return nil }

func (r *echoRecognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *echoRecognizer) StreamingRecognize(ctx context.Context, _ recognizer.Config, src recognizer.RequestSource) (recognizer.ResponseStream, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}

	st := &fakeStream{ch: make(chan *recognizer.Response, 64)}
	go func() {
		if r.hold {
			<-ctx.Done()
			st.end(ctx.Err())
			return
		}
		n := 0
		for {
			req, ok := src.Next()
			if !ok {
				st.end(nil)
				return
			}
			n++
			if r.failAfter > 0 && n > r.failAfter {
				st.end(r.failErr)
				return
			}
			select {
			case st.ch <- finalResponse(string(req.Audio)):
			case <-ctx.Done():
				st.end(ctx.Err())
				return
			}
		}
	}()
	return st, nil
}

type fakeStream struct {
	ch  chan *recognizer.Response
	err error
}

func (s *fakeStream) end(err error) {
	if err == nil {
		err = io.EOF
	}
	s.err = err
	close(s.ch)
}

func (s *fakeStream) Recv() (*recognizer.Response, error) {
	r, ok := <-s.ch
	if !ok {
		return nil, s.err
	}
	return r, nil
}

func finalResponse(text string) *recognizer.Response {
	return &recognizer.Response{Results: []recognizer.Result{{
		Alternatives: []recognizer.Alternative{{Transcript: text}},
		IsFinal:      true,
	}}}
}

type update struct {
	Text    string
	IsFinal bool
}

type recordingEmitter struct {
	mu      sync.Mutex
	updates []update
	errors  []string
	reports []string
}

func (e *recordingEmitter) TranscriptUpdate(text string, isFinal bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, update{text, isFinal})
	return nil
}

func (e *recordingEmitter) TranscriptError(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, message)
	return nil
}

func (e *recordingEmitter) ReportSaved(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, name)
	return nil
}

func (e *recordingEmitter) snapshot() ([]update, []string, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]update(nil), e.updates...), append([]string(nil), e.errors...), append([]string(nil), e.reports...)
}

type harness struct {
	rec     *echoRecognizer
	store   *report.Store
	metrics *metrics.Metrics
	reg     *Registry
}

func newHarness(t *testing.T, rec *echoRecognizer) *harness {
	t.Helper()
	h := &harness{
		rec:     rec,
		store:   report.NewStore(t.TempDir()),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.reg = NewRegistry(Options{
		Recognizer:   rec,
		StreamConfig: recognizer.Config{Encoding: recognizer.EncodingLinear16, SampleRateHertz: 16000, LanguageCode: "en-US"},
		Reports:      h.store,
		Metrics:      h.metrics,
		Now:          func() time.Time { return testNow },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.reg.Shutdown(ctx)
	})
	return h
}

func waitClosed(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("session %s did not close, state %s", s.ID(), s.State())
	}
	return err
}

func readReport(t *testing.T, store *report.Store, name string) string {
	t.Helper()
	data, err := store.Read(name)
	if err != nil {
		t.Fatalf("Failed to read report %q: %v", name, err)
	}
	return string(data)
}
