package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/rtp-translator/internal/pipeline"
)

func TestLanguagesHandler_OverrideAppliesToNextWindow(t *testing.T) {
	var (
		mu     sync.Mutex
		inputs []pipeline.Input
	)
	proc := &fakeProcessor{fn: func(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
		mu.Lock()
		inputs = append(inputs, in)
		mu.Unlock()
		return &pipeline.Result{}, nil
	}}
	r, _ := newTestRelay(testOptions(320), proc, zerolog.Nop())
	l := testListener(&captureWriter{})
	key := caller(5004).String()

	r.handleDatagram(l, datagram(0, filled(0x55, 160)), caller(5004))

	body := `{"session_id":"` + key + `","source_lang":"fr","target_lang":"de"}`
	rec := httptest.NewRecorder()
	r.LanguagesHandler()(rec, httptest.NewRequest(http.MethodPost, "/sessions/languages", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got LanguagePair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, LanguagePair{SessionID: key, SourceLang: "fr", TargetLang: "de"}, got)

	r.handleDatagram(l, datagram(1, filled(0x55, 160)), caller(5004))
	waitDispatch(t, r)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, inputs, 1)
	assert.Equal(t, "fr", inputs[0].SourceLang)
	assert.Equal(t, "de", inputs[0].TargetLang)
}

func TestLanguagesHandler_Get(t *testing.T) {
	r, _ := newTestRelay(testOptions(320), &fakeProcessor{fn: echo}, zerolog.Nop())
	r.handleDatagram(testListener(&captureWriter{}), datagram(0, filled(0x55, 160)), caller(5004))

	target := "/sessions/languages?session_id=" + url.QueryEscape(caller(5004).String())
	rec := httptest.NewRecorder()
	r.LanguagesHandler()(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got LanguagePair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "en", got.SourceLang)
	assert.Equal(t, "es", got.TargetLang)
}

func TestLanguagesHandler_Errors(t *testing.T) {
	r, _ := newTestRelay(testOptions(320), &fakeProcessor{fn: echo}, zerolog.Nop())

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"unknown session", http.MethodPost, `{"session_id":"10.0.0.9:1","source_lang":"en","target_lang":"fr"}`, http.StatusNotFound},
		{"missing language", http.MethodPost, `{"session_id":"10.0.0.9:1","source_lang":"en"}`, http.StatusBadRequest},
		{"invalid body", http.MethodPost, `{`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.LanguagesHandler()(rec, httptest.NewRequest(tt.method, "/sessions/languages", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
