package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the translation relay
type Config struct {
	// RTP ingress/egress
	ListenIP           string `envconfig:"RTP_LISTEN_IP" default:"0.0.0.0"`
	BasePort           int    `envconfig:"RTP_BASE_PORT" default:"4000"`        // slot i listens on base+2i, replies to base+2i+1
	MaxConcurrentCalls int    `envconfig:"MAX_CONCURRENT_CALLS" default:"50"`   // Number of reserved port slots
	ReadBufferSize     int    `envconfig:"RTP_READ_BUFFER_SIZE" default:"2048"` // Max datagram size read per packet

	// Languages applied to every new session
	SourceLanguage string `envconfig:"SOURCE_LANGUAGE" default:"en"`
	TargetLanguage string `envconfig:"TARGET_LANGUAGE" default:"es"`

	// Audio windowing and egress
	WindowDurationMs      int     `envconfig:"WINDOW_DURATION_MS" default:"2000"` // 2s at 8kHz = 16000 μ-law bytes
	EgressChunkMs         int     `envconfig:"EGRESS_CHUNK_MS" default:"20"`      // 20ms = 160 samples per packet
	EgressPacing          bool    `envconfig:"EGRESS_PACING" default:"true"`      // Pace outbound packets to real time
	DispatchMaxConcurrent int     `envconfig:"DISPATCH_MAX_CONCURRENT" default:"16"`
	SilenceThreshold      float64 `envconfig:"SILENCE_THRESHOLD" default:"0"` // RMS gate on 16-bit scale, 0 disables

	// Session lifecycle and monitoring
	SessionIdleTimeout int    `envconfig:"SESSION_IDLE_TIMEOUT" default:"300"` // seconds, 0 disables the sweep
	StatsInterval      int    `envconfig:"STATS_INTERVAL" default:"60"`        // seconds
	RecordingDir       string `envconfig:"RECORDING_DIR" default:""`           // pcap per session when set

	// HTTP side server (health, readiness, metrics, stats)
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	// Pipeline backend selection
	RecognizerBackend  string `envconfig:"RECOGNIZER_BACKEND" default:"grpc"`  // grpc, deepgram
	TranslatorBackend  string `envconfig:"TRANSLATOR_BACKEND" default:"grpc"`  // grpc
	SynthesizerBackend string `envconfig:"SYNTHESIZER_BACKEND" default:"grpc"` // grpc, cartesia, echo

	// Remote pipeline gRPC endpoint
	PipelineURL        string `envconfig:"PIPELINE_URL" default:"localhost:50051"`
	PipelineTLSEnabled bool   `envconfig:"PIPELINE_TLS_ENABLED" default:"false"`
	PipelineTimeout    int    `envconfig:"PIPELINE_TIMEOUT" default:"30"` // seconds

	// Deepgram STT API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-multilingual"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"500"`            // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Error is returned when a setting is missing or invalid at startup
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the relay cannot start without
func (c *Config) Validate() error {
	if c.MaxConcurrentCalls <= 0 {
		return &Error{Field: "MAX_CONCURRENT_CALLS", Reason: "must be positive"}
	}
	if c.BasePort <= 0 {
		return &Error{Field: "RTP_BASE_PORT", Reason: "must be positive"}
	}
	if last := c.BasePort + 2*c.MaxConcurrentCalls - 1; last > 65535 {
		return &Error{Field: "RTP_BASE_PORT", Reason: fmt.Sprintf("slot range ends at port %d", last)}
	}
	if strings.TrimSpace(c.SourceLanguage) == "" {
		return &Error{Field: "SOURCE_LANGUAGE", Reason: "is required"}
	}
	if strings.TrimSpace(c.TargetLanguage) == "" {
		return &Error{Field: "TARGET_LANGUAGE", Reason: "is required"}
	}
	if c.WindowDurationMs <= 0 {
		return &Error{Field: "WINDOW_DURATION_MS", Reason: "must be positive"}
	}
	if c.EgressChunkMs <= 0 {
		return &Error{Field: "EGRESS_CHUNK_MS", Reason: "must be positive"}
	}
	if c.DispatchMaxConcurrent <= 0 {
		return &Error{Field: "DISPATCH_MAX_CONCURRENT", Reason: "must be positive"}
	}
	if c.ReadBufferSize < 12 {
		return &Error{Field: "RTP_READ_BUFFER_SIZE", Reason: "must hold at least an RTP header"}
	}

	switch c.RecognizerBackend {
	case "grpc":
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return &Error{Field: "DEEPGRAM_API_KEY", Reason: "is required for the deepgram recognizer"}
		}
	default:
		return &Error{Field: "RECOGNIZER_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.RecognizerBackend)}
	}

	if c.TranslatorBackend != "grpc" {
		return &Error{Field: "TRANSLATOR_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.TranslatorBackend)}
	}

	switch c.SynthesizerBackend {
	case "grpc", "echo":
	case "cartesia":
		if c.CartesiaAPIKey == "" {
			return &Error{Field: "CARTESIA_API_KEY", Reason: "is required for the cartesia synthesizer"}
		}
	default:
		return &Error{Field: "SYNTHESIZER_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.SynthesizerBackend)}
	}

	return nil
}

// SlotPorts returns the listen and return ports reserved for a call slot
// counted from base
func SlotPorts(base, slot int) (listen, send int) {
	listen = base + 2*slot
	return listen, listen + 1
}

// WindowBytes is the number of 8kHz μ-law bytes that make up one window
func (c *Config) WindowBytes() int {
	return c.WindowDurationMs * 8
}

// ChunkSamples is the number of 8kHz samples carried by one outbound packet
func (c *Config) ChunkSamples() int {
	return c.EgressChunkMs * 8
}

// ChunkInterval is the real-time duration of one outbound packet
func (c *Config) ChunkInterval() time.Duration {
	return time.Duration(c.EgressChunkMs) * time.Millisecond
}

// UsesRemotePipeline reports whether any stage talks to the gRPC pipeline service
func (c *Config) UsesRemotePipeline() bool {
	return c.RecognizerBackend == "grpc" || c.TranslatorBackend == "grpc" || c.SynthesizerBackend == "grpc"
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
