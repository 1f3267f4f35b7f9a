package analysis

import (
	"strings"
	"unicode"
)

var intentByType = map[QuestionType]IntentKind{
	Factual:        IntentInformation,
	Procedural:     IntentInstruction,
	Causal:         IntentExplanation,
	Comparative:    IntentComparison,
	Hypothetical:   IntentSpeculation,
	Confirmatory:   IntentConfirmation,
	Conversational: IntentSocial,
}

var (
	urgentCues    = []string{"urgent", "asap", "immediately", "right now", "quickly", "emergency", "hurry"}
	relaxedCues   = []string{"whenever", "sometime", "no rush", "eventually", "at some point"}
	broadCues     = []string{"all", "every", "overall", "general", "always", "everything", "any"}
	conjunctions  = []string{"and", "or", "but", "because", "while", "although", "whereas", "unless"}
	contextLeads  = []string{"and", "but", "so", "also", "then", "what about", "how about", "what else"}
	contextRefs   = []string{"it", "that", "this", "they", "them", "those", "these", "he", "she"}
	definitionCue = []string{"define", "definition", "meaning", "what is a", "what is an", "what does"}
)

// Words splits text into lowercase word tokens, keeping apostrophes.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// containsPhrase matches whole words or phrases inside already-lowercased text.
func containsPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func pad(words []string) string {
	return " " + strings.Join(words, " ") + " "
}

func containsAny(padded string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(padded, p) {
			return true
		}
	}
	return false
}

func startsWithAny(words []string, phrases []string) bool {
	head := pad(words)
	for _, p := range phrases {
		if strings.HasPrefix(head, " "+p+" ") {
			return true
		}
	}
	return false
}

func DeriveIntent(t QuestionType, text string) Intent {
	words := Words(text)
	padded := pad(words)

	intent := Intent{
		Primary: intentByType[t],
		Urgency: UrgencyNormal,
		Scope:   ScopeNarrow,
	}
	if intent.Primary == "" {
		intent.Primary = IntentInformation
	}

	switch {
	case containsAny(padded, urgentCues):
		intent.Urgency = UrgencyHigh
	case containsAny(padded, relaxedCues):
		intent.Urgency = UrgencyLow
	}

	if len(words) > 12 || containsAny(padded, broadCues) {
		intent.Scope = ScopeBroad
	}
	return intent
}

func DeriveComplexity(text string, entityCount int) Complexity {
	words := Words(text)
	padded := pad(words)

	conj := 0
	for _, c := range conjunctions {
		conj += strings.Count(padded, " "+c+" ")
	}

	switch {
	case len(words) > 15 || conj >= 2 || entityCount > 3:
		return Complex
	case len(words) <= 6 && conj == 0:
		return Simple
	default:
		return Moderate
	}
}

// RequiresContext reports whether the utterance leans on something said
// earlier: a leading connector, or a short question built around a pronoun.
func RequiresContext(text string) bool {
	words := Words(text)
	if len(words) == 0 {
		return false
	}
	if startsWithAny(words, contextLeads) {
		return true
	}
	return len(words) <= 6 && containsAny(pad(words), contextRefs)
}

func hasCategory(entities []Entity, c EntityCategory) bool {
	for _, e := range entities {
		if e.Category == c {
			return true
		}
	}
	return false
}

// ClassifySubType refines a question type using entity categories and
// keyword cues.
func ClassifySubType(t QuestionType, entities []Entity, text string) string {
	lower := strings.ToLower(text)
	padded := pad(Words(text))

	switch t {
	case Factual:
		switch {
		case containsAny(padded, definitionCue):
			return "definition"
		case containsAny(padded, []string{"how many", "how much"}) || hasCategory(entities, Number):
			return "quantity"
		case hasCategory(entities, Person) || strings.HasPrefix(strings.TrimSpace(lower), "who"):
			return "person_identity"
		case hasCategory(entities, Location) || strings.HasPrefix(strings.TrimSpace(lower), "where"):
			return "location"
		case hasCategory(entities, Time) || strings.HasPrefix(strings.TrimSpace(lower), "when"):
			return "temporal"
		}
		return "general_fact"
	case Procedural:
		switch {
		case containsAny(padded, []string{"fix", "reset", "repair", "troubleshoot", "solve", "recover"}):
			return "troubleshooting"
		case containsAny(padded, []string{"step", "steps", "walk me through"}):
			return "step_by_step"
		case containsAny(padded, []string{"best way", "should i", "recommend"}):
			return "recommendation"
		}
		return "how_to"
	case Causal:
		switch {
		case containsAny(padded, []string{"reason", "cause", "caused"}):
			return "root_cause"
		case containsAny(padded, []string{"purpose", "point of", "for what"}):
			return "purpose"
		}
		return "explanation"
	case Comparative:
		switch {
		case containsAny(padded, []string{"better", "best", "worse", "prefer"}):
			return "preference"
		case containsAny(padded, []string{"difference", "differ", "different"}):
			return "difference"
		}
		return "comparison"
	case Hypothetical:
		if containsAny(padded, []string{"would happen", "consequence", "consequences", "result"}) {
			return "consequence"
		}
		return "scenario"
	case Confirmatory:
		switch {
		case strings.HasSuffix(lower, "right?") || strings.HasSuffix(lower, "correct?") ||
			containsAny(padded, []string{"isnt it", "isn't it", "arent they", "aren't they", "dont you think", "don't you think"}):
			return "tag_question"
		case hasCategory(entities, Time):
			return "schedule_check"
		}
		return "yes_no"
	case Conversational:
		if containsAny(padded, []string{"how are you", "whats up", "what's up", "hows it going", "how's it going"}) {
			return "social"
		}
		return "open_ended"
	}
	return ""
}
