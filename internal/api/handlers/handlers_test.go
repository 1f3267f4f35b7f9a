package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
)

func newEngine(t *testing.T) *detector.Engine {
	t.Helper()
	cfg := detector.DefaultConfig()
	cfg.EnableAdaptiveThresholds = false
	cfg.SweepInterval = 0
	e, err := detector.New(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestConfigPatch_Apply(t *testing.T) {
	base := detector.DefaultConfig()
	threshold := 0.65
	ttl := int64(1500)
	off := false

	got := ConfigPatch{
		ConfidenceThreshold: &threshold,
		CacheTTLMs:          &ttl,
		EnableFastPath:      &off,
		DisabledRules:       []string{"fast.why"},
	}.Apply(base)

	assert.Equal(t, 0.65, got.ConfidenceThreshold)
	assert.Equal(t, 1500*time.Millisecond, got.CacheTTL)
	assert.False(t, got.EnableFastPath)
	assert.Equal(t, []string{"fast.why"}, got.Patterns.DisabledRules)
	assert.Equal(t, base.FastPathThreshold, got.FastPathThreshold)
	assert.Equal(t, base.CacheSize, got.CacheSize)

	assert.Equal(t, base, ConfigPatch{}.Apply(base))
}

func TestWebSocket_HandleMessage(t *testing.T) {
	e := newEngine(t)
	h := NewWebSocketHandler(e)
	ctx := context.Background()

	reply, closeConn := h.handleMessage(ctx, wsMessage{Type: "detect", ID: "1", Text: "Why is the sky blue?"})
	assert.False(t, closeConn)
	assert.Equal(t, "result", reply["type"])
	assert.Equal(t, "1", reply["id"])
	res := reply["result"].(detectResponse)
	assert.True(t, res.IsQuestion)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "causal", string(res.Analysis.QuestionType))

	reply, _ = h.handleMessage(ctx, wsMessage{Type: "ping", ID: "2"})
	assert.Equal(t, "pong", reply["type"])

	reply, _ = h.handleMessage(ctx, wsMessage{Type: "reset", ID: "3"})
	assert.Equal(t, "reset", reply["type"])
	assert.Empty(t, e.Session().Recent())

	reply, _ = h.handleMessage(ctx, wsMessage{Type: "bogus"})
	assert.Equal(t, "error", reply["type"])

	e.Close()
	reply, closeConn = h.handleMessage(ctx, wsMessage{Type: "detect", Text: "Why is the sky blue?"})
	assert.True(t, closeConn)
	assert.Equal(t, "error", reply["type"])
}
