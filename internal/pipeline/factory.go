package pipeline

import (
	"context"
	"fmt"

	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/remote"
	"github.com/lexiqai/rtp-translator/internal/stt"
	"github.com/lexiqai/rtp-translator/internal/tts"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}

// New builds the pipeline selected by the backend settings
func New(cfg *config.Config) (*Pipeline, error) {
	p := NewPipeline(nil, nil, nil)

	var client *remote.Client
	if cfg.UsesRemotePipeline() {
		c, err := remote.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline client: %w", err)
		}
		client = c
		p.closers = append(p.closers, c.Close)
		p.addHealth("pipeline", c)
	}

	switch cfg.RecognizerBackend {
	case "grpc":
		p.recognizer = client
	case "deepgram":
		d := stt.NewDeepgramRecognizer(cfg)
		p.recognizer = d
		p.addHealth("deepgram", d)
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.RecognizerBackend)
	}

	switch cfg.TranslatorBackend {
	case "grpc":
		p.translator = client
	default:
		return nil, fmt.Errorf("unknown translator backend %q", cfg.TranslatorBackend)
	}

	switch cfg.SynthesizerBackend {
	case "grpc":
		p.synthesizer = client
	case "cartesia":
		c := tts.NewCartesiaSynthesizer(cfg)
		p.synthesizer = c
		p.addHealth("cartesia", c)
	case "echo":
		// nil synthesizer echoes the window
	default:
		return nil, fmt.Errorf("unknown synthesizer backend %q", cfg.SynthesizerBackend)
	}

	return p, nil
}

func (p *Pipeline) addHealth(name string, hc healthChecker) {
	p.health[name] = hc.HealthCheck
}
