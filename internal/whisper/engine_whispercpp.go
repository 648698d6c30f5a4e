//go:build whisper_cpp

package whisper

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// EngineCPP is the whisper.cpp-backed implementation of Engine.
type EngineCPP struct {
	model    whisperpkg.Model
	opts     Options
	language string     // "auto" for auto-detection
	mu       sync.Mutex // the model is not safe for concurrent passes
}

func NewEngine(modelPath string, opts Options) (Engine, error) {
	opts = opts.withDefaults(runtime.NumCPU())

	log.Info().
		Int("threads", opts.Threads).
		Int("workWindowSamples", opts.WorkWindowSamples).
		Float64("workWindowSeconds", float64(opts.WorkWindowSamples)/16000.0).
		Int("contextSamples", opts.ContextSamples).
		Float64("contextSeconds", float64(opts.ContextSamples)/16000.0).
		Msg("whisper: streaming configuration")

	m, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	log.Info().Str("model", modelPath).Msg("whisper: model loaded")
	return &EngineCPP{model: m, opts: opts, language: "auto"}, nil
}

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

func (e *EngineCPP) SetLanguage(lang string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lang == "" {
		lang = "auto"
	}
	e.language = lang
	log.Info().Str("language", lang).Msg("whisper: language configured")
}

// Stream transcribes the tail of samples that fits the context window and
// invokes onSegment for each non-empty segment.
func (e *EngineCPP) Stream(samples []float32, onSegment func(text string, lang string)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) < e.opts.WorkWindowSamples {
		return nil
	}
	if len(samples) > e.opts.ContextSamples {
		samples = samples[len(samples)-e.opts.ContextSamples:]
	}

	ctx, err := e.model.NewContext()
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(uint(e.opts.Threads))
	_ = ctx.SetLanguage(e.language)
	ctx.SetSplitOnWord(true)
	ctx.SetTokenTimestamps(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)
	ctx.SetAudioCtx(0)

	segCB := func(seg whisperpkg.Segment) {
		text := strings.TrimSpace(seg.Text)
		if text == "" || onSegment == nil {
			return
		}
		lang := ctx.Language()
		if lang == "" {
			lang = ctx.DetectedLanguage()
		}
		onSegment(text, lang)
	}

	if err := ctx.Process(samples, nil, segCB, nil); err != nil {
		return fmt.Errorf("process audio: %w", err)
	}
	return nil
}
