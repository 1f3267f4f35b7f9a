package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/sqlite"
	"github.com/wysRocket/dao-copilot-sub005/pkg/config"
)

type testServer struct {
	app     *fiber.App
	engine  *detector.Engine
	history *sqlite.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := detector.DefaultConfig()
	cfg.EnableAdaptiveThresholds = false
	cfg.SweepInterval = 0
	engine, err := detector.New(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	history, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, history.InitSchema())
	t.Cleanup(func() { history.Close() })

	server := config.Default().Server
	server.MaxBatchSize = 3

	return &testServer{
		app:     NewApp(Options{Server: server, Engine: engine, History: history}),
		engine:  engine,
		history: history,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestDetect_Question(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/detect", `{"text":"What is the capital of France?"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_question"])

	res, ok := body["analysis"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "factual", res["question_type"])
	assert.InDelta(t, 0.97, res["confidence"], 1e-9)
}

func TestDetect_StatementAndTooShort(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/detect", `{"text":"The sky is blue."}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_question"])
	assert.NotContains(t, body, "analysis")

	status, body = s.do(t, "POST", "/api/v1/detect", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_question"])

	status, _ = s.do(t, "POST", "/api/v1/detect", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDetectBatch_KeepsOrder(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/detect/batch",
		`{"texts":["What is the capital of France?","The sky is blue.","How do I reset my password?"]}`)
	require.Equal(t, http.StatusOK, status)

	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 3)

	first := results[0].(map[string]interface{})
	second := results[1].(map[string]interface{})
	third := results[2].(map[string]interface{})
	assert.Equal(t, "What is the capital of France?", first["text"])
	assert.Equal(t, true, first["is_question"])
	assert.Equal(t, false, second["is_question"])
	assert.Equal(t, "procedural", third["analysis"].(map[string]interface{})["question_type"])
	assert.EqualValues(t, 2, body["questions"])

	status, _ = s.do(t, "POST", "/api/v1/detect/batch", `{"texts":["a?","b?","c?","d?"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestDetectTranscript(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/v1/detect/transcript",
		`{"text":"What is the capital of France? The sky is blue."}`)
	require.Equal(t, http.StatusOK, status)

	utterances, ok := body["utterances"].([]interface{})
	require.True(t, ok)
	require.Len(t, utterances, 2)
	assert.EqualValues(t, 1, body["questions"])

	second := utterances[1].(map[string]interface{})
	assert.Equal(t, "The sky is blue.", second["text"])
	assert.EqualValues(t, 31, second["offset"])
	assert.Equal(t, false, second["is_question"])
}

func TestConfig_PatchAndReject(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "PUT", "/api/v1/config", `{"confidence_threshold":0.8,"cache_size":10}`)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0.8, body["confidence_threshold"], 1e-9)
	assert.EqualValues(t, 10, body["cache_size"])
	assert.Equal(t, 0.8, s.engine.Config().ConfidenceThreshold)

	status, _ = s.do(t, "PUT", "/api/v1/config", `{"confidence_threshold":1.5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, 0.8, s.engine.Config().ConfidenceThreshold)
}

func TestMetricsAndContext(t *testing.T) {
	s := newTestServer(t)

	s.do(t, "POST", "/api/v1/detect", `{"text":"What is the capital of France?"}`)
	s.do(t, "POST", "/api/v1/detect", `{"text":"What is the capital of France?"}`)

	status, body := s.do(t, "GET", "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["total_detections"])
	assert.EqualValues(t, 1, body["cache_hits"])

	status, body = s.do(t, "GET", "/api/v1/context", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["recent_questions"], 2)

	status, _ = s.do(t, "POST", "/api/v1/context/reset", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, s.engine.Session().Recent())

	status, _ = s.do(t, "DELETE", "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, s.engine.Metrics().ResultCache.Size)
}

func TestHistory_ReadsAuditLog(t *testing.T) {
	s := newTestServer(t)
	sink := sqlite.NewSink(s.history)

	e := events.New(events.AnalysisCompleted)
	e.Text = "Why is the sky blue?"
	e.Result = &analysis.QuestionAnalysis{IsQuestion: true, Confidence: 0.97, QuestionType: analysis.Causal}
	require.NoError(t, sink.Publish(context.Background(), e))

	status, body := s.do(t, "GET", "/api/v1/history?questions_only=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = s.do(t, "GET", "/api/v1/history/stats?since=1h", "")
	require.Equal(t, http.StatusOK, status)
	types := body["types"].([]interface{})
	require.Len(t, types, 1)
	assert.Equal(t, "causal", types[0].(map[string]interface{})["question_type"])

	status, _ = s.do(t, "GET", "/api/v1/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDetect_AfterCloseIsUnavailable(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.engine.Shutdown(context.Background()))

	status, _ := s.do(t, "POST", "/api/v1/detect", `{"text":"What is the capital of France?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHealthAndHeaders(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	resp, err := s.app.Test(req, int(time.Second/time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = s.app.Test(httptest.NewRequest("GET", "/ws/detect", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
