package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
)

type Kind string

const (
	EngineInitialized Kind = "engine:initialized"
	AnalysisCompleted Kind = "analysis:completed"
	ConfigUpdated     Kind = "config:updated"
	AnalysisError     Kind = "analysis:error"
)

type Event struct {
	ID       string                     `json:"id"`
	Kind     Kind                       `json:"kind"`
	Time     time.Time                  `json:"time"`
	Text     string                     `json:"text,omitempty"`
	Result   *analysis.QuestionAnalysis `json:"result,omitempty"`
	Duration time.Duration              `json:"duration_ns,omitempty"`
	FastPath bool                       `json:"fast_path,omitempty"`
	CacheHit bool                       `json:"cache_hit,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Changes  []string                   `json:"changes,omitempty"`
}

func New(kind Kind) Event {
	return Event{
		ID:   uuid.NewString(),
		Kind: kind,
		Time: time.Now().UTC(),
	}
}
