package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/core"
	"github.com/champierre/saym/internal/gateway"
	"github.com/champierre/saym/internal/metrics"
	"github.com/champierre/saym/internal/scratch"
	"github.com/champierre/saym/internal/server"
	"github.com/champierre/saym/internal/tts/audio/audiotest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected engine failure")

type stubEngine struct {
	mu    sync.Mutex
	calls []core.EngineRequest
	err   error
}

func (s *stubEngine) Device() string { return "cuda" }

func (s *stubEngine) Synthesize(_ context.Context, req core.EngineRequest) error {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	err := os.WriteFile(req.OutputPath, audiotest.Silence(audiotest.XTTSSampleRate, 100*time.Millisecond), 0o600)
	if err != nil {
		return err
	}

	return s.err
}

func (s *stubEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

type testServer struct {
	router  *gin.Engine
	engine  *stubEngine
	tempDir string
}

func newTestServer(t *testing.T, engine *stubEngine, defaultVoice string) *testServer {
	t.Helper()

	log, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	tempDir := t.TempDir()

	dir, err := scratch.New(tempDir, log)
	require.NoError(t, err)

	m := metrics.New()

	gw := gateway.New(
		engine,
		dir,
		gateway.NewVoiceRegistry(defaultVoice),
		gateway.Options{ModelID: "xtts_v2", DefaultLanguage: "en", Recorder: m},
		log,
	)

	router, err := server.NewRouter(server.Options{Gateway: gw, Logger: log, Metrics: m})
	require.NoError(t, err)

	return &testServer{router: router, engine: engine, tempDir: tempDir}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)

	return recorder
}

func writeVoice(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, audiotest.Silence(16000, 50*time.Millisecond), 0o600))

	return path
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return string(data)
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Contains(t, body, "error")

	return body["error"]
}

func TestHealth_AlwaysOK(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")

	recorder := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]string

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "healthy", "model": "xtts_v2", "device": "cuda"}, body)
}

func TestDocsAndUsage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")

	docs := ts.do(t, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusOK, docs.Code)
	assert.Contains(t, docs.Body.String(), `"/set_speaker":"POST - Set default speaker wav"`)
	assert.Contains(t, docs.Body.String(), `"tts_params"`)

	usage := ts.do(t, http.MethodGet, "/api/tts", "")
	require.Equal(t, http.StatusOK, usage.Code)
	assert.Contains(t, usage.Body.String(), "XTTS v2 server is running")
}

func TestSynthesize_MissingTextNeverInvokesEngine(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, writeVoice(t))

	for _, body := range []string{"", `{}`, `{"text":""}`, `{"language":"en"}`} {
		recorder := ts.do(t, http.MethodPost, "/api/tts", body)

		assert.Equal(t, http.StatusBadRequest, recorder.Code, "body %q", body)
		assert.Equal(t, gateway.MsgNoText, decodeError(t, recorder))
	}

	assert.Zero(t, ts.engine.callCount())
}

func TestSynthesize_NoSpeakerAndNoDefault(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")

	recorder := ts.do(t, http.MethodPost, "/api/tts", `{"text":"hello"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, gateway.MsgNoSpeaker, decodeError(t, recorder))
}

func TestSynthesize_ExplicitEmptySpeakerIsRejected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, writeVoice(t))

	for _, body := range []string{
		`{"text":"hello","speaker_wav":null}`,
		`{"text":"hello","speaker_wav":""}`,
	} {
		recorder := ts.do(t, http.MethodPost, "/api/tts", body)
		assert.Equal(t, http.StatusBadRequest, recorder.Code, body)
		assert.Equal(t, gateway.MsgNoSpeaker, decodeError(t, recorder))
	}

	assert.Zero(t, ts.engine.callCount())
}

func TestSetSpeaker_ThenSynthesizeUsesDefault(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")
	voice := writeVoice(t)

	setResp := ts.do(t, http.MethodPost, "/set_speaker", jsonBody(t, map[string]string{"speaker_wav": voice}))
	require.Equal(t, http.StatusOK, setResp.Code)
	assert.Contains(t, setResp.Body.String(), "Default speaker set to: ")

	recorder := ts.do(t, http.MethodPost, "/api/tts", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Equal(t, voice, ts.engine.calls[0].SpeakerPath)
	assert.Equal(t, "en", ts.engine.calls[0].Language)
}

func TestSetSpeaker_InvalidPathKeepsPrevious(t *testing.T) {
	t.Parallel()

	previous := writeVoice(t)
	ts := newTestServer(t, &stubEngine{}, previous)

	missing := filepath.Join(t.TempDir(), "missing.wav")

	for _, body := range []string{jsonBody(t, map[string]string{"speaker_wav": missing}), `{}`} {
		recorder := ts.do(t, http.MethodPost, "/set_speaker", body)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, gateway.MsgInvalidSpeaker, decodeError(t, recorder))
	}

	recorder := ts.do(t, http.MethodPost, "/api/tts", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, previous, ts.engine.calls[0].SpeakerPath)
}

func TestSynthesize_Base64SpeakerReturnsWAV(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")

	payload := base64.StdEncoding.EncodeToString(audiotest.Silence(16000, 50*time.Millisecond))
	body := jsonBody(t, map[string]string{"text": "Bonjour", "speaker_wav": payload, "language": "fr"})

	recorder := ts.do(t, http.MethodPost, "/api/tts", body)
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Equal(t, "audio/wav", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=output.wav", recorder.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(recorder.Body.Bytes(), []byte("RIFF")))

	assert.NoFileExists(t, ts.engine.calls[0].SpeakerPath)

	entries, err := os.ReadDir(ts.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSynthesize_EngineFailureReturns500(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{err: errInjected}, writeVoice(t))

	recorder := ts.do(t, http.MethodPost, "/api/tts", `{"text":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Contains(t, decodeError(t, recorder), "injected engine failure")
	assert.NoFileExists(t, ts.engine.calls[0].OutputPath)
}

func TestMalformedJSON(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, writeVoice(t))

	for _, path := range []string{"/api/tts", "/set_speaker"} {
		recorder := ts.do(t, http.MethodPost, path, `{"text": `)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, decodeError(t, recorder), "Invalid JSON body")
	}

	wrongType := ts.do(t, http.MethodPost, "/api/tts", `{"text":"hi","speaker_wav":42}`)
	assert.Equal(t, http.StatusBadRequest, wrongType.Code)
	assert.Zero(t, ts.engine.callCount())
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/tts", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubEngine{}, writeVoice(t))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/tts", `{"text":"hello"}`).Code)

	recorder := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Contains(t, recorder.Body.String(), `xtts_syntheses_total{outcome="ok"} 1`)
	assert.Contains(t, recorder.Body.String(), `xtts_http_requests_total{code="200",method="POST",route="/api/tts"} 1`)
}

func TestNewRouter_RequiresGateway(t *testing.T) {
	t.Parallel()

	_, err := server.NewRouter(server.Options{})
	require.ErrorIs(t, err, server.ErrGatewayRequired)
}
