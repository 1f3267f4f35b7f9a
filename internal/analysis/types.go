package analysis

import "time"

type QuestionType string

const (
	Factual        QuestionType = "factual"
	Procedural     QuestionType = "procedural"
	Causal         QuestionType = "causal"
	Comparative    QuestionType = "comparative"
	Hypothetical   QuestionType = "hypothetical"
	Confirmatory   QuestionType = "confirmatory"
	Conversational QuestionType = "conversational"
)

func (t QuestionType) Valid() bool {
	switch t {
	case Factual, Procedural, Causal, Comparative, Hypothetical, Confirmatory, Conversational:
		return true
	}
	return false
}

type EntityCategory string

const (
	Person   EntityCategory = "person"
	Time     EntityCategory = "time"
	Number   EntityCategory = "number"
	Location EntityCategory = "location"
)

type Entity struct {
	Text       string         `json:"text"`
	Category   EntityCategory `json:"category"`
	Position   int            `json:"position"`
	Confidence float64        `json:"confidence"`
}

type PatternMatch struct {
	RuleID     string  `json:"rule_id"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`
}

type IntentKind string

const (
	IntentInformation  IntentKind = "information"
	IntentInstruction  IntentKind = "instruction"
	IntentExplanation  IntentKind = "explanation"
	IntentComparison   IntentKind = "comparison"
	IntentSpeculation  IntentKind = "speculation"
	IntentConfirmation IntentKind = "confirmation"
	IntentSocial       IntentKind = "social"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

type Scope string

const (
	ScopeNarrow Scope = "narrow"
	ScopeBroad  Scope = "broad"
)

type Intent struct {
	Primary IntentKind `json:"primary"`
	Urgency Urgency    `json:"urgency"`
	Scope   Scope      `json:"scope"`
}

type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// QuestionAnalysis is never mutated once produced. The cache and callers
// share instances; anything handed to a caller is a Clone.
type QuestionAnalysis struct {
	IsQuestion      bool           `json:"is_question"`
	Confidence      float64        `json:"confidence"`
	QuestionType    QuestionType   `json:"question_type"`
	SubType         string         `json:"sub_type,omitempty"`
	Patterns        []PatternMatch `json:"patterns"`
	Entities        []Entity       `json:"entities"`
	Intent          Intent         `json:"intent"`
	Complexity      Complexity     `json:"complexity"`
	RequiresContext bool           `json:"requires_context"`
	Timestamp       time.Time      `json:"timestamp"`
}

func (q *QuestionAnalysis) Clone() *QuestionAnalysis {
	if q == nil {
		return nil
	}
	out := *q
	if q.Patterns != nil {
		out.Patterns = append([]PatternMatch(nil), q.Patterns...)
	}
	if q.Entities != nil {
		out.Entities = append([]Entity(nil), q.Entities...)
	}
	return &out
}

// EqualIgnoringTime reports whether two analyses carry the same verdict.
func (q *QuestionAnalysis) EqualIgnoringTime(other *QuestionAnalysis) bool {
	if q == nil || other == nil {
		return q == other
	}
	if q.IsQuestion != other.IsQuestion ||
		q.Confidence != other.Confidence ||
		q.QuestionType != other.QuestionType ||
		q.SubType != other.SubType ||
		q.Intent != other.Intent ||
		q.Complexity != other.Complexity ||
		q.RequiresContext != other.RequiresContext {
		return false
	}
	if len(q.Patterns) != len(other.Patterns) || len(q.Entities) != len(other.Entities) {
		return false
	}
	for i := range q.Patterns {
		if q.Patterns[i] != other.Patterns[i] {
			return false
		}
	}
	for i := range q.Entities {
		if q.Entities[i] != other.Entities[i] {
			return false
		}
	}
	return true
}
