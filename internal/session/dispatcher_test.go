package session

import (
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/obiente/translate/scribe/internal/metrics"
	"github.com/obiente/translate/scribe/internal/recognizer"
)

type scriptStream struct {
	responses []*recognizer.Response
	err       error
}

func (s *scriptStream) Recv() (*recognizer.Response, error) {
	if len(s.responses) == 0 {
		return nil, s.err
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func response(isFinal bool, texts ...string) *recognizer.Response {
	alts := make([]recognizer.Alternative, len(texts))
	for i, t := range texts {
		alts[i] = recognizer.Alternative{Transcript: t}
	}
	return &recognizer.Response{Results: []recognizer.Result{{Alternatives: alts, IsFinal: isFinal}}}
}

func TestDispatcherRun(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDispatcher(em, zerolog.Nop(), metrics.New(prometheus.NewRegistry()))

	stream := &scriptStream{err: io.EOF, responses: []*recognizer.Response{
		{},
		{Results: []recognizer.Result{{IsFinal: true}}},
		response(false, "hel"),
		response(true, "hello", "yellow"),
		response(true, "  "),
		{Results: []recognizer.Result{
			{Alternatives: []recognizer.Alternative{{Transcript: "world"}}, IsFinal: true},
			{Alternatives: []recognizer.Alternative{{Transcript: "ignored"}}, IsFinal: true},
		}},
	}}

	if err := d.Run(stream); err != nil {
		t.Fatalf("Expected nil on EOF, got %v", err)
	}

	updates, errs, _ := em.snapshot()
	want := []update{{"hel", false}, {"hello", true}, {"  ", true}, {"world", true}}
	if len(updates) != len(want) {
		t.Fatalf("Expected %d updates, got %+v", len(want), updates)
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("Update %d: got %+v, want %+v", i, updates[i], want[i])
		}
	}
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	finals := d.Finals()
	if len(finals) != 2 || finals[0] != "hello" || finals[1] != "world" {
		t.Errorf("Expected [hello world], got %v", finals)
	}
}

func TestDispatcherRunError(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDispatcher(em, zerolog.Nop(), metrics.New(prometheus.NewRegistry()))
	boom := errors.New("stream broke")

	err := d.Run(&scriptStream{err: boom, responses: []*recognizer.Response{response(true, "kept")}})
	var se *StreamError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("Expected StreamError wrapping boom, got %v", err)
	}
	_, errs, _ := em.snapshot()
	if len(errs) != 1 || errs[0] != se.ClientMessage() {
		t.Errorf("Unexpected transcript errors: %v", errs)
	}
	if f := d.Finals(); len(f) != 1 || f[0] != "kept" {
		t.Errorf("Expected [kept], got %v", f)
	}
}
