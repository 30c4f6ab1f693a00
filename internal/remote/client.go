package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/observability"
	"github.com/lexiqai/rtp-translator/internal/resilience"
)

// Client calls the remote pipeline service. It satisfies the recognizer,
// translator and synthesizer roles at once.
type Client struct {
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	breakers    map[string]*resilience.CircuitBreaker // by method
	retryConfig *resilience.RetryConfig
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewClient creates a client for cfg.PipelineURL. The connection is
// established lazily on the first call. Extra options are applied last.
func NewClient(cfg *config.Config, extra ...grpc.DialOption) (*Client, error) {
	logger := observability.GetLogger().With().Str("component", "remote_pipeline").Logger()

	var opts []grpc.DialOption
	if cfg.PipelineTLSEnabled {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// Keepalive settings for long-lived connections
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.PipelineURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection to %s: %w", cfg.PipelineURL, err)
	}

	// One breaker per stage, shared by every call
	breakers := make(map[string]*resilience.CircuitBreaker, 3)
	for method, name := range map[string]string{
		recognizeMethod:  "pipeline_recognize",
		translateMethod:  "pipeline_translate",
		synthesizeMethod: "pipeline_synthesize",
	} {
		breakers[method] = resilience.NewCircuitBreaker(
			name,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		).OnStateChange(func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		})
	}

	logger.Info().Str("url", cfg.PipelineURL).Bool("tls", cfg.PipelineTLSEnabled).Msg("Pipeline client created")

	return &Client{
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
		breakers: breakers,
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		timeout: time.Duration(cfg.PipelineTimeout) * time.Second,
		logger:  logger,
	}, nil
}

// Recognize sends 16 kHz samples and returns the transcript
func (c *Client) Recognize(ctx context.Context, samples []float32, lang string) (string, error) {
	out := new(wrapperspb.StringValue)
	in := wrapperspb.Bytes(audio.FloatToPCM16(samples))
	if err := c.invoke(ctx, recognizeMethod, lang, "", in, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Translate translates text from sourceLang to targetLang
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, translateMethod, sourceLang, targetLang, wrapperspb.String(text), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Synthesize returns 8 kHz samples for text
func (c *Client) Synthesize(ctx context.Context, text, lang string) ([]float32, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, synthesizeMethod, "", lang, wrapperspb.String(text), out); err != nil {
		return nil, err
	}

	samples, err := audio.PCM16ToFloat(out.GetValue())
	if err != nil {
		return nil, fmt.Errorf("invalid synthesized audio: %w", err)
	}
	return samples, nil
}

func (c *Client) invoke(ctx context.Context, method, sourceLang, targetLang string, in, out proto.Message) error {
	breaker := c.breakers[method]
	err := breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			var pairs []string
			if sourceLang != "" {
				pairs = append(pairs, MetadataSourceLanguage, sourceLang)
			}
			if targetLang != "" {
				pairs = append(pairs, MetadataTargetLanguage, targetLang)
			}
			if len(pairs) > 0 {
				callCtx = metadata.AppendToOutgoingContext(callCtx, pairs...)
			}

			return c.conn.Invoke(callCtx, method, in, out)
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})

	if err != nil {
		observability.IncrementCircuitBreakerFailures(breaker.Name())
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// HealthCheck asks the server's standard health service about the pipeline
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}
