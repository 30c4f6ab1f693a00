// Package stt recognizes speech with Deepgram's live transcription API.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/observability"
	"github.com/lexiqai/rtp-translator/internal/resilience"
)

const (
	sampleRate = 16000
	writeChunk = 3200 // 100ms of 16 kHz PCM16
	quietAfter = 1500 * time.Millisecond
)

// messageCallbackHandler embeds the default handler and overrides only Message and Error
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse)
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.errorHandler(errorResponse)
	return nil
}

// DeepgramRecognizer opens one live transcription socket per window
type DeepgramRecognizer struct {
	apiKey          string
	model           string
	timeout         time.Duration
	quietPeriod     time.Duration
	circuitBreaker  *resilience.CircuitBreaker
	reconnectConfig *resilience.ReconnectConfig
	logger          zerolog.Logger
}

// NewDeepgramRecognizer creates a recognizer from the Deepgram settings
func NewDeepgramRecognizer(cfg *config.Config) *DeepgramRecognizer {
	logger := observability.GetLogger().With().Str("component", "deepgram").Logger()

	breaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	).OnStateChange(func(name string, _, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
	})

	return &DeepgramRecognizer{
		apiKey:         cfg.DeepgramAPIKey,
		model:          cfg.DeepgramModel,
		timeout:        time.Duration(cfg.PipelineTimeout) * time.Second,
		quietPeriod:    quietAfter,
		circuitBreaker: breaker,
		reconnectConfig: &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  5 * time.Second,
			Logger:      &logger,
		},
		logger: logger,
	}
}

// Recognize streams 16 kHz samples and returns the joined final transcripts
func (d *DeepgramRecognizer) Recognize(ctx context.Context, samples []float32, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	collector := newTranscriptCollector()
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                collector.onMessage,
		errorHandler: func(e *msginterfaces.ErrorResponse) {
			d.logger.Error().Interface("error", e).Msg("Deepgram error")
			collector.onError(fmt.Errorf("deepgram error: %+v", e))
		},
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       lang,
		Punctuate:      true,
		InterimResults: false,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     sampleRate,
	}

	var client *listenClient.WSCallback
	err := d.circuitBreaker.Call(func() error {
		return resilience.Reconnect(ctx, func(ctx context.Context) error {
			c, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, nil, tOptions, callback)
			if err != nil {
				return fmt.Errorf("failed to create Deepgram client: %w", err)
			}
			if !c.Connect() {
				return errors.New("failed to connect to Deepgram")
			}
			client = c
			return nil
		}, d.reconnectConfig)
	})
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return "", err
	}
	defer client.Finish()

	pcm := audio.FloatToPCM16(samples)
	for off := 0; off < len(pcm); off += writeChunk {
		end := off + writeChunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := client.Write(pcm[off:end]); err != nil {
			d.circuitBreaker.RecordResult(false)
			return "", fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
	}

	return collector.wait(ctx, d.quietPeriod)
}

// HealthCheck reports unhealthy while the circuit is open
func (d *DeepgramRecognizer) HealthCheck(ctx context.Context) (bool, error) {
	if d.circuitBreaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}

// transcriptCollector gathers final results delivered on the SDK's goroutine
type transcriptCollector struct {
	mu      sync.Mutex
	finals  []string
	err     error
	updated chan struct{}
}

func newTranscriptCollector() *transcriptCollector {
	return &transcriptCollector{updated: make(chan struct{}, 1)}
}

func (c *transcriptCollector) onMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
		return
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" {
		c.notify()
		return
	}

	c.mu.Lock()
	c.finals = append(c.finals, text)
	c.mu.Unlock()
	c.notify()
}

func (c *transcriptCollector) onError(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.notify()
}

func (c *transcriptCollector) notify() {
	select {
	case c.updated <- struct{}{}:
	default:
	}
}

func (c *transcriptCollector) result() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.finals) > 0 {
		return strings.Join(c.finals, " "), nil
	}
	return "", c.err
}

// wait returns once no result has arrived for quiet, an error arrived, or ctx is done
func (c *transcriptCollector) wait(ctx context.Context, quiet time.Duration) (string, error) {
	timer := time.NewTimer(quiet)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			text, err := c.result()
			if text != "" || err != nil {
				return text, err
			}
			return "", ctx.Err()
		case <-c.updated:
			if _, err := c.result(); err != nil {
				return c.result()
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		case <-timer.C:
			return c.result()
		}
	}
}
