package session

import (
	"errors"
	"time"

	"github.com/obiente/translate/scribe/internal/recognizer"
)

var (
	ErrSessionExists  = errors.New("session already exists for connection")
	ErrNoSession      = errors.New("no session for connection")
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopping       = errors.New("session is stopping")
	ErrNotStreaming   = errors.New("session is not accepting audio")
	ErrClosed         = errors.New("session closed")
	ErrShuttingDown   = errors.New("registry is shutting down")
)

// Emitter delivers outbound events to the connection that owns a session.
type Emitter interface {
	TranscriptUpdate(text string, isFinal bool) error
	TranscriptError(message string) error
	ReportSaved(name string) error
}

// ReportWriter persists the final transcript of a closed session and
// returns the report name.
type ReportWriter interface {
	Write(at time.Time, connID string, finals []string) (string, error)
}

// StreamError is the result of a session whose recognition stream failed,
// as opposed to one that completed normally.
type StreamError struct {
	Err   error
	Quota bool
}

func newStreamError(err error) *StreamError {
	return &StreamError{Err: err, Quota: recognizer.IsQuotaError(err)}
}

func (e *StreamError) Error() string { return "recognition stream: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// ClientMessage is the text sent to the client in a transcript_error event.
func (e *StreamError) ClientMessage() string {
	if e.Quota {
		return "recognition quota exceeded"
	}
	return "recognition stream failed: " + e.Err.Error()
}
