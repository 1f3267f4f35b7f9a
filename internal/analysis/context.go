package analysis

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxPreviousQuestions = 5
	DefaultMaxRelatedEntities   = 20

	contextBaseBonus   = 0.35
	contextPerQuestion = 0.05
	contextScoreCap    = 0.9
)

var followUpConnectors = []string{
	"and", "also", "but", "so", "then", "what about", "how about", "why not", "what else", "and what",
}

type PreviousQuestion struct {
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
	At   time.Time    `json:"at"`
}

// SessionContext is the rolling short-term memory of one engine.
type SessionContext struct {
	mu           sync.Mutex
	maxQuestions int
	maxEntities  int
	questions    []PreviousQuestion
	entities     []Entity
}

func NewSessionContext(maxQuestions, maxEntities int) *SessionContext {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxPreviousQuestions
	}
	if maxEntities <= 0 {
		maxEntities = DefaultMaxRelatedEntities
	}
	return &SessionContext{
		maxQuestions: maxQuestions,
		maxEntities:  maxEntities,
	}
}

// Record appends a positive detection, dropping the oldest question and the
// oldest entities once the bounds are reached.
func (s *SessionContext) Record(text string, a *QuestionAnalysis) {
	if a == nil || !a.IsQuestion {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = append(s.questions, PreviousQuestion{Text: text, Type: a.QuestionType, At: a.Timestamp})
	if over := len(s.questions) - s.maxQuestions; over > 0 {
		s.questions = append(s.questions[:0:0], s.questions[over:]...)
	}

	for _, e := range a.Entities {
		if s.hasEntity(e) {
			continue
		}
		s.entities = append(s.entities, Entity{Text: e.Text, Category: e.Category, Confidence: e.Confidence})
	}
	if over := len(s.entities) - s.maxEntities; over > 0 {
		s.entities = append(s.entities[:0:0], s.entities[over:]...)
	}
}

func (s *SessionContext) hasEntity(e Entity) bool {
	for _, existing := range s.entities {
		if existing.Category == e.Category && strings.EqualFold(existing.Text, e.Text) {
			return true
		}
	}
	return false
}

func (s *SessionContext) Recent() []PreviousQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PreviousQuestion(nil), s.questions...)
}

func (s *SessionContext) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entity(nil), s.entities...)
}

func (s *SessionContext) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = nil
	s.entities = nil
}

type ContextScore struct {
	Confidence float64
	Type       QuestionType
}

// ScoreContext raises signal, the strongest pattern or keyword confidence,
// when text follows up on recent questions. Text must open with a follow-up
// connector and carry an interrogative cue, so a connector alone never makes
// a statement a question. The type is inherited from the latest question.
func ScoreContext(text string, signal float64, recent []PreviousQuestion) ContextScore {
	if len(recent) == 0 || signal <= 0 {
		return ContextScore{}
	}
	if !startsWithAny(Words(text), followUpConnectors) || !HasInterrogativeCue(text) {
		return ContextScore{}
	}

	n := len(recent)
	if n > 3 {
		n = 3
	}
	score := signal + contextBaseBonus + contextPerQuestion*float64(n)
	if score > contextScoreCap {
		score = contextScoreCap
	}
	return ContextScore{
		Confidence: score,
		Type:       recent[len(recent)-1].Type,
	}
}
