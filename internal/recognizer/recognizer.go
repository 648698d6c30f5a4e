// Package recognizer defines the streaming speech recognition contract the
// session worker drives, plus the backends that implement it.
package recognizer

import (
	"context"
	"io"
	"sync"
)

type Encoding string

const EncodingLinear16 Encoding = "LINEAR16"

// Config describes the audio a stream will carry and the results wanted back.
type Config struct {
	Encoding          Encoding
	SampleRateHertz   int
	LanguageCode      string
	EnablePunctuation bool
	InterimResults    bool
}

// Request is one unit of audio sent to a backend.
type Request struct {
	Audio []byte
}

type Alternative struct {
	Transcript string
	Confidence float32
}

type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Response is one message read from a backend stream. It may carry no
// results at all (keepalives, metadata).
type Response struct {
	Results []Result
}

// RequestSource yields requests until it reports false. Backends call Next
// from a single goroutine and must stop once it returns false.
type RequestSource interface {
	Next() (Request, bool)
}

// ResponseStream yields backend responses. Recv returns io.EOF once the
// backend has finished the stream normally; any other error is a transport
// failure.
type ResponseStream interface {
	Recv() (*Response, error)
}

// Recognizer opens bidirectional recognition streams.
type Recognizer interface {
	Name() string
	StreamingRecognize(ctx context.Context, cfg Config, requests RequestSource) (ResponseStream, error)
	Close() error
}

// pipe is a ResponseStream fed by a backend goroutine. The terminal error
// is recorded before the channel closes, so Recv sees it after the last
// response.
type pipe struct {
	ch   chan *Response
	once sync.Once
	err  error
}

func newPipe() *pipe {
	return &pipe{ch: make(chan *Response, 16)}
}

func (p *pipe) send(ctx context.Context, r *Response) bool {
	select {
	case p.ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish ends the stream; err nil means normal completion.
func (p *pipe) finish(err error) {
	p.once.Do(func() {
		if err == nil {
			err = io.EOF
		}
		p.err = err
		close(p.ch)
	})
}

func (p *pipe) Recv() (*Response, error) {
	r, ok := <-p.ch
	if !ok {
		return nil, p.err
	}
	return r, nil
}
