package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/obiente/translate/scribe/internal/config"
	"github.com/obiente/translate/scribe/internal/whisper"
)

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.Config) (Recognizer, error) {
	switch cfg.Backend {
	case config.BackendGoogle:
		return NewGoogle(ctx, cfg.GoogleCredentialsFile)
	case config.BackendDeepgram:
		return NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramHost, cfg.DeepgramModel), nil
	case config.BackendWhisper:
		engine, err := whisper.NewEngine(cfg.WhisperModelPath, whisper.Options{
			Threads:           cfg.WhisperThreads,
			WorkWindowSamples: cfg.WhisperWorkWindowSamples,
			ContextSamples:    cfg.WhisperContextSamples,
		})
		if errors.Is(err, whisper.ErrUnavailable) {
			return nil, fmt.Errorf("backend %q: %w (rebuild with -tags whisper_cpp)", cfg.Backend, err)
		}
		if err != nil {
			return nil, fmt.Errorf("whisper engine: %w", err)
		}
		engine.SetLanguage(whisperLanguage(cfg.Language))
		return NewWhisper(engine), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// StreamConfig derives the per-stream recognition config from cfg.
func StreamConfig(cfg config.Config) Config {
	return Config{
		Encoding:          EncodingLinear16,
		SampleRateHertz:   cfg.SampleRate,
		LanguageCode:      cfg.Language,
		EnablePunctuation: cfg.Punctuate,
		InterimResults:    cfg.InterimResults,
	}
}

// whisperLanguage maps a BCP-47 tag like "en-US" to whisper's two letter code.
func whisperLanguage(tag string) string {
	if tag == "" {
		return "auto"
	}
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}
