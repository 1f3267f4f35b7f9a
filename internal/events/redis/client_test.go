package redis

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
)

func TestEncode_CarriesResultAndTiming(t *testing.T) {
	e := events.New(events.AnalysisCompleted)
	e.Text = "How do I reset my password?"
	e.Duration = 3 * time.Millisecond
	e.CacheHit = true
	e.Result = &analysis.QuestionAnalysis{IsQuestion: true, Confidence: 0.94, QuestionType: analysis.Procedural}

	data, err := Encode(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "analysis:completed", decoded["kind"])
	assert.Equal(t, true, decoded["cache_hit"])
	assert.EqualValues(t, 3*time.Millisecond, decoded["duration_ns"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "procedural", result["question_type"])
	_, hasFastPath := decoded["fast_path"]
	assert.False(t, hasFastPath)
}

// Needs a live server: QDETECT_TEST_REDIS=host:port.
func TestPublisher_Live(t *testing.T) {
	addr := os.Getenv("QDETECT_TEST_REDIS")
	if addr == "" {
		t.Skip("QDETECT_TEST_REDIS not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := Options{Host: host, Port: port, Channel: "qdetect:test", SnapshotKey: "qdetect:test:metrics", SnapshotTTL: time.Minute}
	pub, err := NewPublisher(ctx, opts)
	require.NoError(t, err)
	defer pub.Close()

	sub := redis.NewClient(&redis.Options{Addr: addr}).Subscribe(ctx, opts.Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	e := events.New(events.ConfigUpdated)
	require.NoError(t, pub.Publish(ctx, e))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, e.ID)

	require.NoError(t, pub.StoreSnapshot(ctx, map[string]int{"queued": 2}))
	var snap map[string]int
	found, err := pub.LoadSnapshot(ctx, &snap)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, snap["queued"])
}
