// Package tts synthesizes speech with Cartesia's HTTP API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/observability"
	"github.com/lexiqai/rtp-translator/internal/resilience"
)

const (
	defaultAPIURL   = "https://api.cartesia.ai/tts/bytes"
	apiVersion      = "2024-06-10"
	cartesiaRate    = 24000
	telephonyRate   = 8000
	maxErrorBodyLen = 512
)

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string         `json:"model_id"`
	Transcript   string         `json:"transcript"`
	Voice        CartesiaVoice  `json:"voice"`
	OutputFormat CartesiaFormat `json:"output_format"`
	Language     string         `json:"language,omitempty"`
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaFormat describes the raw audio we want back
type CartesiaFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// CartesiaSynthesizer converts text to 8 kHz samples
type CartesiaSynthesizer struct {
	apiKey         string
	apiURL         string
	voiceID        string
	modelID        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewCartesiaSynthesizer creates a new Cartesia TTS client
func NewCartesiaSynthesizer(cfg *config.Config) *CartesiaSynthesizer {
	breaker := resilience.NewCircuitBreaker(
		"cartesia",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	).OnStateChange(func(name string, _, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
	})

	attempts := cfg.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &CartesiaSynthesizer{
		apiKey:         cfg.CartesiaAPIKey,
		apiURL:         defaultAPIURL,
		voiceID:        cfg.CartesiaVoiceID,
		modelID:        cfg.CartesiaModelID,
		httpClient:     &http.Client{Timeout: time.Duration(cfg.PipelineTimeout) * time.Second},
		circuitBreaker: breaker,
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       attempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		logger: observability.GetLogger().With().Str("component", "cartesia").Logger(),
	}
}

// WithURL points the client at a different endpoint
func (c *CartesiaSynthesizer) WithURL(url string) *CartesiaSynthesizer {
	c.apiURL = url
	return c
}

// Synthesize returns the spoken text as 8 kHz normalized samples
func (c *CartesiaSynthesizer) Synthesize(ctx context.Context, text, lang string) ([]float32, error) {
	reqBody := CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: CartesiaFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaRate,
		},
		Language: lang,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var pcm []byte
	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var postErr error
			pcm, postErr = c.post(ctx, jsonData)
			return postErr
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		observability.IncrementCircuitBreakerFailures("cartesia")
		return nil, err
	}

	// Cartesia outputs PCM at 24kHz, calls run at 8kHz
	samples, err := audio.PCM16ToFloat(pcm)
	if err != nil {
		return nil, fmt.Errorf("invalid audio from cartesia: %w", err)
	}
	samples = audio.Resample(samples, cartesiaRate, telephonyRate)

	c.logger.Debug().Int("pcm_bytes", len(pcm)).Int("samples", len(samples)).Msg("Synthesized audio")
	return samples, nil
}

func (c *CartesiaSynthesizer) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		err := fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		// Throttling and server errors are worth another attempt
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}
	return data, nil
}

// HealthCheck reports unhealthy while the circuit is open
func (c *CartesiaSynthesizer) HealthCheck(ctx context.Context) (bool, error) {
	if c.circuitBreaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}
