package whisper

import "errors"

// ErrUnavailable is returned by NewEngine in builds without whisper.cpp.
var ErrUnavailable = errors.New("whisper: built without whisper_cpp tag")

// Engine is a small interface for whisper transcription.
// Implementations are backed by whisper.cpp (build tag: whisper_cpp).
type Engine interface {
	// Stream runs transcription and calls back for each segment as it becomes available.
	// The callback should be fast and non-blocking to avoid stalling decoding.
	Stream(samples []float32, onSegment func(text string, lang string)) error
	// SetLanguage configures the language for transcription. Use "auto" for auto-detection.
	SetLanguage(lang string)
	Close() error
}

// Options tune a whisper.cpp engine. Zero values fall back to defaults.
type Options struct {
	Threads           int
	WorkWindowSamples int // minimum samples before a pass runs
	ContextSamples    int // sliding window handed to the model
}

func (o Options) withDefaults(numCPU int) Options {
	if o.Threads <= 0 {
		o.Threads = numCPU
	}
	if o.WorkWindowSamples <= 0 {
		o.WorkWindowSamples = 8000 // 0.5s at 16kHz
	}
	if o.ContextSamples <= 0 {
		o.ContextSamples = 960000 // 60s at 16kHz
	}
	return o
}
