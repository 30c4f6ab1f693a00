// Package pipeline runs one audio window through recognition, translation and synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/observability"
)

// Recognizer turns 16 kHz samples into text. Empty text means nothing was said.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, lang string) (string, error)
}

// Translator translates text between two languages
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Synthesizer turns text into 8 kHz samples
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]float32, error)
}

// Stage names a pipeline step in errors, logs and metrics
type Stage string

const (
	StageRecognize  Stage = "recognize"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
)

// Error is a failure inside one stage of the pipeline
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of a pipeline error, or "" for other errors
func StageOf(err error) Stage {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return ""
}

// Input is one decoded 8 kHz window with the session's language pair
type Input struct {
	Samples    []float32
	SourceLang string
	TargetLang string
}

// Result of processing a window. Audio is nil when nothing was recognized.
type Result struct {
	Original   string
	Translated string
	Audio      []float32
}

// Empty reports whether there is nothing to send back
func (r *Result) Empty() bool {
	return r == nil || len(r.Audio) == 0
}

// Pipeline chains the three collaborators
type Pipeline struct {
	recognizer  Recognizer
	translator  Translator
	synthesizer Synthesizer
	closers     []func() error
	health      map[string]observability.HealthCheckFunc
}

// NewPipeline wires the collaborators. A nil synthesizer echoes the caller's
// own window back, which keeps the call audible while no voice is configured.
func NewPipeline(r Recognizer, t Translator, s Synthesizer) *Pipeline {
	return &Pipeline{
		recognizer:  r,
		translator:  t,
		synthesizer: s,
		health:      make(map[string]observability.HealthCheckFunc),
	}
}

// Process runs one window through the pipeline
func (p *Pipeline) Process(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	text, err := p.recognizer.Recognize(ctx, audio.Upsample2x(in.Samples), in.SourceLang)
	observability.ObserveStage(string(StageRecognize), start, err)
	if err != nil {
		return nil, &Error{Stage: StageRecognize, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{}, nil
	}

	start = time.Now()
	translated, err := p.translator.Translate(ctx, text, in.SourceLang, in.TargetLang)
	observability.ObserveStage(string(StageTranslate), start, err)
	if err != nil {
		return nil, &Error{Stage: StageTranslate, Err: err}
	}

	result := &Result{Original: text, Translated: translated}

	if p.synthesizer == nil {
		result.Audio = in.Samples
		return result, nil
	}

	start = time.Now()
	samples, err := p.synthesizer.Synthesize(ctx, translated, in.TargetLang)
	observability.ObserveStage(string(StageSynthesize), start, err)
	if err != nil {
		return nil, &Error{Stage: StageSynthesize, Err: err}
	}
	result.Audio = samples

	return result, nil
}

// HealthChecks returns readiness probes for the configured backends
func (p *Pipeline) HealthChecks() map[string]observability.HealthCheckFunc {
	return p.health
}

// Close releases backend connections
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
