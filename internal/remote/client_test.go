package remote

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/resilience"
)

type fakePipelineServer struct {
	recognizeBytes int
	recognizeLang  string
	translateErr   error
	synthLang      string
}

func (f *fakePipelineServer) Recognize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	f.recognizeBytes = len(in.GetValue())
	f.recognizeLang, _ = LanguagesFromContext(ctx)
	return wrapperspb.String("good morning"), nil
}

func (f *fakePipelineServer) Translate(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if f.translateErr != nil {
		return nil, f.translateErr
	}
	src, dst := LanguagesFromContext(ctx)
	return wrapperspb.String(src + "->" + dst + ":" + strings.ToUpper(in.GetValue())), nil
}

func (f *fakePipelineServer) Synthesize(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	_, f.synthLang = LanguagesFromContext(ctx)
	return wrapperspb.Bytes(audio.FloatToPCM16([]float32{0.5, -0.5, 0})), nil
}

func testConfig() *config.Config {
	return &config.Config{
		PipelineURL:                "passthrough:///bufnet",
		PipelineTimeout:            5,
		CircuitBreakerMaxFailures:  2,
		CircuitBreakerResetTimeout: 60,
		RetryMaxAttempts:           2,
		RetryInitialBackoff:        1,
	}
}

func startServer(t *testing.T, srv PipelineServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterPipelineServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client, err := NewClient(testConfig(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Recognize(t *testing.T) {
	srv := &fakePipelineServer{}
	client := startServer(t, srv)

	text, err := client.Recognize(context.Background(), make([]float32, 320), "en")
	require.NoError(t, err)

	assert.Equal(t, "good morning", text)
	assert.Equal(t, 640, srv.recognizeBytes, "PCM16LE is two bytes per sample")
	assert.Equal(t, "en", srv.recognizeLang)
}

func TestClient_Translate(t *testing.T) {
	client := startServer(t, &fakePipelineServer{})

	out, err := client.Translate(context.Background(), "hola", "es", "en")
	require.NoError(t, err)
	assert.Equal(t, "es->en:HOLA", out)
}

func TestClient_Synthesize(t *testing.T) {
	srv := &fakePipelineServer{}
	client := startServer(t, srv)

	samples, err := client.Synthesize(context.Background(), "hello", "fr")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, -0.5, 0}, samples)
	assert.Equal(t, "fr", srv.synthLang)
}

func TestClient_NonRetryableErrorSurfaces(t *testing.T) {
	srv := &fakePipelineServer{translateErr: status.Error(codes.InvalidArgument, "unsupported language")}
	client := startServer(t, srv)

	_, err := client.Translate(context.Background(), "x", "xx", "yy")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	srv := &fakePipelineServer{translateErr: status.Error(codes.Internal, "model crashed")}
	client := startServer(t, srv)

	for i := 0; i < 2; i++ {
		_, err := client.Translate(context.Background(), "x", "en", "es")
		require.Error(t, err)
	}

	_, err := client.Translate(context.Background(), "x", "en", "es")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_HealthCheck(t *testing.T) {
	client := startServer(t, &fakePipelineServer{})

	healthy, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestClient_BreakersAreIndependentPerStage(t *testing.T) {
	srv := &fakePipelineServer{translateErr: status.Error(codes.Internal, "model crashed")}
	client := startServer(t, srv)

	for i := 0; i < 2; i++ {
		_, err := client.Translate(context.Background(), "x", "en", "es")
		require.Error(t, err)
	}
	_, err := client.Translate(context.Background(), "x", "en", "es")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)

	text, err := client.Recognize(context.Background(), make([]float32, 160), "en")
	require.NoError(t, err)
	assert.Equal(t, "good morning", text)

	_, err = client.Synthesize(context.Background(), "hello", "es")
	assert.NoError(t, err)
}
