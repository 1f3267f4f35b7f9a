package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })
	return c
}

func completed(text string, res *analysis.QuestionAnalysis, at time.Time) events.Event {
	e := events.New(events.AnalysisCompleted)
	e.Text = text
	e.Result = res
	e.Duration = 1500 * time.Microsecond
	e.Time = at
	return e
}

func TestSink_RecordsCompletedAnalyses(t *testing.T) {
	c := newTestClient(t)
	sink := NewSink(c)
	ctx := context.Background()
	now := time.Now().UTC()

	q := &analysis.QuestionAnalysis{IsQuestion: true, Confidence: 0.97, QuestionType: analysis.Factual, SubType: "general_fact"}
	require.NoError(t, sink.Publish(ctx, completed("What is the capital of France?", q, now.Add(-time.Second))))
	require.NoError(t, sink.Publish(ctx, completed("The weather is nice today.", nil, now)))
	require.NoError(t, sink.Publish(ctx, events.New(events.ConfigUpdated)))

	all, err := c.RecentAnalyses(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "The weather is nice today.", all[0].Text)
	assert.False(t, all[0].IsQuestion)
	assert.Empty(t, all[0].Result)

	assert.Equal(t, "What is the capital of France?", all[1].Text)
	assert.True(t, all[1].IsQuestion)
	assert.InDelta(t, 0.97, all[1].Confidence, 1e-9)
	assert.Equal(t, "factual", all[1].QuestionType)
	assert.Equal(t, int64(1500), all[1].LatencyUS)
	assert.Contains(t, all[1].Result, `"question_type":"factual"`)

	questions, err := c.RecentAnalyses(ctx, models.HistoryFilter{QuestionsOnly: true})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "What is the capital of France?", questions[0].Text)
}

func TestInsertAnalysis_DuplicateEventIgnored(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	e := completed("How do I reset my password?", &analysis.QuestionAnalysis{IsQuestion: true, Confidence: 0.9, QuestionType: analysis.Procedural}, time.Now())
	rec, ok := RecordFromEvent(e)
	require.True(t, ok)
	require.NoError(t, c.InsertAnalysis(ctx, rec))
	require.NoError(t, c.InsertAnalysis(ctx, rec))

	all, err := c.RecentAnalyses(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecentAnalyses_FiltersAndLimit(t *testing.T) {
	c := newTestClient(t)
	sink := NewSink(c)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, qt := range []analysis.QuestionType{analysis.Factual, analysis.Causal, analysis.Factual, analysis.Procedural} {
		res := &analysis.QuestionAnalysis{IsQuestion: true, Confidence: 0.8, QuestionType: qt}
		require.NoError(t, sink.Publish(ctx, completed("question", res, base.Add(time.Duration(i)*time.Minute))))
	}

	factual, err := c.RecentAnalyses(ctx, models.HistoryFilter{QuestionType: "factual"})
	require.NoError(t, err)
	assert.Len(t, factual, 2)

	limited, err := c.RecentAnalyses(ctx, models.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "procedural", limited[0].QuestionType)

	recent, err := c.RecentAnalyses(ctx, models.HistoryFilter{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestCountByTypeAndPrune(t *testing.T) {
	c := newTestClient(t)
	sink := NewSink(c)
	ctx := context.Background()
	now := time.Now().UTC()

	publish := func(qt analysis.QuestionType, conf float64, at time.Time) {
		res := &analysis.QuestionAnalysis{IsQuestion: true, Confidence: conf, QuestionType: qt}
		require.NoError(t, sink.Publish(ctx, completed("q", res, at)))
	}
	publish(analysis.Factual, 0.8, now)
	publish(analysis.Factual, 0.9, now)
	publish(analysis.Causal, 0.75, now)
	publish(analysis.Causal, 0.75, now.Add(-48*time.Hour))

	counts, err := c.CountByType(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "factual", counts[0].QuestionType)
	assert.Equal(t, 2, counts[0].Count)
	assert.InDelta(t, 0.85, counts[0].AvgConf, 1e-9)
	assert.Equal(t, "causal", counts[1].QuestionType)
	assert.Equal(t, 1, counts[1].Count)

	removed, err := c.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
