package stt

import (
	"context"
	"errors"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/resilience"
)

func finalMessage(text string, final bool) *msginterfaces.MessageResponse {
	msg := &msginterfaces.MessageResponse{Type: "Results", IsFinal: final}
	msg.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: text}}
	return msg
}

func TestTranscriptCollector_JoinsFinals(t *testing.T) {
	c := newTranscriptCollector()

	go func() {
		c.onMessage(finalMessage("good", false))
		c.onMessage(finalMessage("good morning", true))
		c.onMessage(finalMessage(" everyone ", true))
	}()

	text, err := c.wait(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "good morning everyone", text)
}

func TestTranscriptCollector_QuietWithoutSpeech(t *testing.T) {
	c := newTranscriptCollector()

	text, err := c.wait(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscriptCollector_Error(t *testing.T) {
	c := newTranscriptCollector()
	c.onError(errors.New("deepgram: bad request"))

	_, err := c.wait(context.Background(), time.Second)
	assert.EqualError(t, err, "deepgram: bad request")
}

func TestTranscriptCollector_ContextDeadline(t *testing.T) {
	c := newTranscriptCollector()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.wait(ctx, time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranscriptCollector_IgnoresNilAndEmpty(t *testing.T) {
	c := newTranscriptCollector()
	c.onMessage(nil)
	c.onMessage(&msginterfaces.MessageResponse{IsFinal: true})

	text, err := c.result()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDeepgramRecognizer_HealthFollowsCircuit(t *testing.T) {
	d := NewDeepgramRecognizer(&config.Config{
		DeepgramAPIKey:             "test",
		DeepgramModel:              "nova-2",
		PipelineTimeout:            1,
		CircuitBreakerMaxFailures:  1,
		CircuitBreakerResetTimeout: 60,
	})

	healthy, err := d.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)

	d.circuitBreaker.RecordResult(false)
	healthy, err = d.HealthCheck(context.Background())
	assert.False(t, healthy)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
