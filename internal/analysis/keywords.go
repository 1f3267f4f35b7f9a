package analysis

import "strings"

const (
	keywordScoreCap     = 0.9
	questionMarkBonus   = 0.3
	entityBonusPerMatch = 0.05
)

type keywordCategory struct {
	name     string
	weight   float64
	terms    []string
	typeFor  func(term string) QuestionType
	headOnly bool // terms count only when they open a clause
}

var interrogatives = []string{"what", "who", "where", "when", "why", "how", "which", "whose", "whom"}

var clauseJoiners = map[string]bool{
	"and": true, "but": true, "so": true, "or": true, "then": true, "also": true,
	"well": true, "ok": true, "okay": true, "um": true, "uh": true, "yet": true,
}

func isClauseBreak(r rune) bool {
	switch r {
	case '.', '?', '!', ';', ',', ':':
		return true
	}
	return false
}

// clauseHeads returns the padded words that open a clause: the first word
// after sentence punctuation, and any word following a conjunction or filler.
func clauseHeads(text string) string {
	var heads []string
	for _, clause := range strings.FieldsFunc(text, isClauseBreak) {
		words := Words(clause)
		for i, w := range words {
			if i == 0 || clauseJoiners[words[i-1]] {
				heads = append(heads, w)
			}
		}
	}
	return pad(heads)
}

// HasInterrogativeCue reports whether text ends with a question mark or has a
// wh-word opening one of its clauses.
func HasInterrogativeCue(text string) bool {
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		return true
	}
	return containsAny(clauseHeads(text), interrogatives)
}

func fixedType(t QuestionType) func(string) QuestionType {
	return func(string) QuestionType { return t }
}

func interrogativeType(term string) QuestionType {
	switch term {
	case "how":
		return Procedural
	case "why":
		return Causal
	default:
		return Factual
	}
}

// KeywordScorer produces the keyword/semantic signal of the detailed path.
type KeywordScorer struct {
	categories []keywordCategory
}

func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{
		categories: []keywordCategory{
			{
				name:     "interrogative",
				weight:   0.35,
				terms:    interrogatives,
				typeFor:  interrogativeType,
				headOnly: true,
			},
			{
				name:    "request",
				weight:  0.3,
				terms:   []string{"explain", "tell me", "describe", "show me", "help me", "walk me through"},
				typeFor: fixedType(Procedural),
			},
			{
				name:    "comparison",
				weight:  0.3,
				terms:   []string{"versus", "vs", "compared", "compare", "difference", "better", "worse", "prefer"},
				typeFor: fixedType(Comparative),
			},
			{
				name:    "causal",
				weight:  0.25,
				terms:   []string{"because", "reason", "cause", "caused"},
				typeFor: fixedType(Causal),
			},
			{
				name:    "uncertainty",
				weight:  0.25,
				terms:   []string{"wonder", "wondering", "curious", "not sure", "unsure", "confused", "do you know"},
				typeFor: fixedType(Conversational),
			},
			{
				name:    "hypothetical",
				weight:  0.2,
				terms:   []string{"if", "suppose", "imagine", "would", "hypothetically"},
				typeFor: fixedType(Hypothetical),
			},
			{
				name:    "confirmation",
				weight:  0.15,
				terms:   []string{"right", "correct", "true", "really", "sure"},
				typeFor: fixedType(Confirmatory),
			},
		},
	}
}

type KeywordScore struct {
	Confidence float64
	Type       QuestionType
	Hits       []string
}

// Score sums each matching category's weight once, adds a bonus for a
// trailing question mark and for every extracted entity, and caps at 0.9.
// Wh-words only count when they open a clause. The type comes from the
// heaviest matching category.
func (s *KeywordScorer) Score(text string, entities []Entity) KeywordScore {
	padded := pad(Words(text))
	heads := clauseHeads(text)

	var (
		score      float64
		bestWeight float64
		result     KeywordScore
	)
	for _, cat := range s.categories {
		haystack := padded
		if cat.headOnly {
			haystack = heads
		}
		for _, term := range cat.terms {
			if !containsPhrase(haystack, term) {
				continue
			}
			score += cat.weight
			result.Hits = append(result.Hits, cat.name+":"+term)
			if cat.weight > bestWeight {
				bestWeight = cat.weight
				result.Type = cat.typeFor(term)
			}
			break
		}
	}

	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		score += questionMarkBonus
		if result.Type == "" {
			result.Type = Conversational
		}
	}

	if score > 0 {
		score += entityBonusPerMatch * float64(len(entities))
	}
	if score > keywordScoreCap {
		score = keywordScoreCap
	}
	result.Confidence = score
	return result
}
