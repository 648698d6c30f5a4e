package recognizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/scribe/internal/audio"
	"github.com/obiente/translate/scribe/internal/whisper"
)

const (
	whisperRate = 16000
	// keep a rolling 90s window, dropping the oldest 30s when full
	maxWindowSamples  = 90 * whisperRate
	trimWindowSamples = 30 * whisperRate
	// only run a pass once this much new audio arrived (0.3s)
	minNewSamples = whisperRate * 3 / 10
	// passes a completed sentence must survive unchanged before it is final
	stableThreshold = 2
)

// Whisper runs a local whisper.cpp engine over a growing audio window and
// derives interim and final results from text stability between passes.
type Whisper struct {
	engine whisper.Engine
}

func NewWhisper(engine whisper.Engine) *Whisper {
	return &Whisper{engine: engine}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Close() error { return w.engine.Close() }

func (w *Whisper) StreamingRecognize(ctx context.Context, cfg Config, requests RequestSource) (ResponseStream, error) {
	p := newPipe()
	go func() {
		p.finish(w.run(ctx, cfg, requests, p))
	}()
	return p, nil
}

func (w *Whisper) run(ctx context.Context, cfg Config, requests RequestSource, p *pipe) error {
	var (
		samples []float32
		pending int
		st      = &stabilizer{threshold: stableThreshold}
	)

	emit := func(results []Result) error {
		for _, r := range results {
			if !cfg.InterimResults && !r.IsFinal {
				continue
			}
			if !p.send(ctx, &Response{Results: []Result{r}}) {
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		req, ok := requests.Next()
		if !ok {
			break
		}
		pcm, err := audio.PCM16LEToFloat32(req.Audio)
		if err != nil {
			log.Warn().Err(err).Str("backend", "whisper").Msg("dropping malformed frame")
			continue
		}
		pcm = audio.ResampleLinear(pcm, cfg.SampleRateHertz, whisperRate)
		samples = append(samples, pcm...)
		pending += len(pcm)
		if len(samples) > maxWindowSamples {
			samples = samples[trimWindowSamples:]
		}
		if pending < minNewSamples {
			continue
		}
		pending = 0

		text, err := w.transcribe(samples)
		if err != nil {
			return err
		}
		if err := emit(st.update(text)); err != nil {
			return err
		}
	}

	if pending > 0 {
		text, err := w.transcribe(samples)
		if err != nil {
			return err
		}
		st.update(text)
	}
	return emit(st.flush())
}

func (w *Whisper) transcribe(samples []float32) (string, error) {
	var segments []string
	err := w.engine.Stream(samples, func(text, _ string) {
		segments = append(segments, text)
	})
	if err != nil {
		return "", fmt.Errorf("whisper pass: %w", err)
	}
	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// stabilizer turns successive full-window transcriptions into interim and
// final results. A completed sentence becomes final once it has been seen
// unchanged for threshold passes; everything after the finalized prefix is
// reported as interim.
type stabilizer struct {
	threshold   int
	finalized   string
	lastStable  string
	stableCount int
	last        string
}

func (s *stabilizer) update(full string) []Result {
	full = strings.TrimSpace(full)
	if full == "" {
		return nil
	}
	s.slide(full)
	s.last = full

	var out []Result
	if end := lastSentenceEnd(full); end > len(s.finalized) {
		completed := full[:end]
		if completed == s.lastStable {
			s.stableCount++
		} else {
			s.lastStable = completed
			s.stableCount = 1
		}
		if s.stableCount >= s.threshold {
			if text := strings.TrimSpace(strings.TrimPrefix(completed, s.finalized)); text != "" {
				out = append(out, textResult(text, true))
			}
			s.finalized = completed
			s.lastStable = ""
			s.stableCount = 0
		}
	} else {
		s.lastStable = ""
		s.stableCount = 0
	}

	if tail := strings.TrimSpace(strings.TrimPrefix(full, s.finalized)); tail != "" {
		out = append(out, textResult(tail, false))
	}
	return out
}

// flush finalizes whatever text has not been finalized yet.
func (s *stabilizer) flush() []Result {
	s.slide(s.last)
	tail := strings.TrimSpace(strings.TrimPrefix(s.last, s.finalized))
	s.finalized = s.last
	if tail == "" {
		return nil
	}
	return []Result{textResult(tail, true)}
}

// slide keeps the part of the finalized text that is still at the start of
// full after the audio window moved, so it is never finalized twice.
func (s *stabilizer) slide(full string) {
	if s.finalized == "" || strings.HasPrefix(full, s.finalized) {
		return
	}
	s.finalized = full[:overlap(s.finalized, full)]
}

// overlap returns the length of the longest word-aligned suffix of prev that
// full starts with.
func overlap(prev, full string) int {
	for i := 0; i < len(prev); i++ {
		if i > 0 && prev[i-1] != ' ' {
			continue
		}
		suffix := prev[i:]
		if strings.HasPrefix(full, suffix) && (len(full) == len(suffix) || full[len(suffix)] == ' ') {
			return len(suffix)
		}
	}
	return 0
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	i := strings.LastIndexAny(s, ".!?。！？")
	if i < 0 {
		return -1
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return i + size
}

func textResult(text string, final bool) Result {
	return Result{Alternatives: []Alternative{{Transcript: text}}, IsFinal: final}
}
