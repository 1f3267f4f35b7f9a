package models

import "time"

type AnalysisRecord struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	Text         string    `json:"text"`
	IsQuestion   bool      `json:"is_question"`
	Confidence   float64   `json:"confidence"`
	QuestionType string    `json:"question_type,omitempty"`
	SubType      string    `json:"sub_type,omitempty"`
	FastPath     bool      `json:"fast_path"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyUS    int64     `json:"latency_us"`
	Result       string    `json:"result,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type HistoryFilter struct {
	Limit         int
	QuestionsOnly bool
	QuestionType  string
	Since         time.Time
}

type TypeCount struct {
	QuestionType string  `json:"question_type"`
	Count        int     `json:"count"`
	AvgConf      float64 `json:"avg_confidence"`
}
