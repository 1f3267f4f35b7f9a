package patterns

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
)

// Rule is a precompiled matching rule. Rules are immutable once the catalog
// is built.
type Rule struct {
	ID       string
	Pattern  *regexp.Regexp
	Type     analysis.QuestionType
	Weight   float64
	Priority int
	FastPath bool
}

// RuleSpec is the uncompiled form of a Rule, used for the built-in set and
// for rules supplied through configuration.
type RuleSpec struct {
	ID       string                `json:"id"`
	Pattern  string                `json:"pattern"`
	Type     analysis.QuestionType `json:"type"`
	Weight   float64               `json:"weight"`
	Priority int                   `json:"priority"`
	FastPath bool                  `json:"fast_path"`
}

type Options struct {
	BaseFastPathConfidence float64    `json:"base_fast_path_confidence"`
	FastPathBoost          float64    `json:"fast_path_boost"`
	DisabledRules          []string   `json:"disabled_rules,omitempty"`
	ExtraRules             []RuleSpec `json:"extra_rules,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		BaseFastPathConfidence: 0.7,
		FastPathBoost:          0.3,
	}
}

// Catalog holds the fast and detailed rule lists, each sorted by ascending
// priority with the rule ID as tie-breaker.
type Catalog struct {
	opts     Options
	fast     []*Rule
	detailed []*Rule
}

func NewCatalog(opts Options) (*Catalog, error) {
	disabled := make(map[string]bool, len(opts.DisabledRules))
	for _, id := range opts.DisabledRules {
		disabled[id] = true
	}

	specs := append(builtinRules(), opts.ExtraRules...)
	seen := make(map[string]bool, len(specs))

	c := &Catalog{opts: opts}
	for _, spec := range specs {
		if disabled[spec.ID] {
			continue
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", spec.ID)
		}
		seen[spec.ID] = true

		if !spec.Type.Valid() {
			return nil, fmt.Errorf("rule %q: unknown question type %q", spec.ID, spec.Type)
		}
		if spec.Weight <= 0 || spec.Weight > 1 {
			return nil, fmt.Errorf("rule %q: weight %v outside (0,1]", spec.ID, spec.Weight)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}

		rule := &Rule{
			ID:       spec.ID,
			Pattern:  re,
			Type:     spec.Type,
			Weight:   spec.Weight,
			Priority: spec.Priority,
			FastPath: spec.FastPath,
		}
		if rule.FastPath {
			c.fast = append(c.fast, rule)
		} else {
			c.detailed = append(c.detailed, rule)
		}
	}

	sortRules(c.fast)
	sortRules(c.detailed)
	return c, nil
}

func sortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func (c *Catalog) Fast() []*Rule     { return c.fast }
func (c *Catalog) Detailed() []*Rule { return c.detailed }
func (c *Catalog) Options() Options  { return c.opts }
func (c *Catalog) Len() int          { return len(c.fast) + len(c.detailed) }

// builtinRules operate on normalized text: lowercase, collapsed whitespace,
// only word characters, spaces and ?!. left, so apostrophes are already gone.
func builtinRules() []RuleSpec {
	return []RuleSpec{
		// Fast path: leading interrogatives and auxiliaries.
		{ID: "fast.wh-factual", Pattern: `^(what|who|where|when|which|whose|whom)\b`, Type: analysis.Factual, Weight: 0.9, Priority: 1, FastPath: true},
		{ID: "fast.how-quantity", Pattern: `^how (many|much|long|far|old|often|big)\b`, Type: analysis.Factual, Weight: 0.9, Priority: 2, FastPath: true},
		{ID: "fast.how-procedural", Pattern: `^how (do|does|did|can|could|should|would|to|is|are)\b`, Type: analysis.Procedural, Weight: 0.9, Priority: 3, FastPath: true},
		{ID: "fast.why", Pattern: `^why\b`, Type: analysis.Causal, Weight: 0.9, Priority: 4, FastPath: true},
		{ID: "fast.aux-yes-no", Pattern: `^(is|are|was|were|do|does|did|can|could|will|would|should|has|have|had|am)\b.*\?$`, Type: analysis.Confirmatory, Weight: 0.85, Priority: 5, FastPath: true},
		{ID: "fast.trailing-mark", Pattern: `\?$`, Type: analysis.Conversational, Weight: 0.4, Priority: 10, FastPath: true},

		// Detailed path.
		{ID: "detail.what-if", Pattern: `^(what if|suppose|supposing|imagine if|hypothetically)\b`, Type: analysis.Hypothetical, Weight: 0.9, Priority: 1},
		{ID: "detail.would-if", Pattern: `\bwould\b.*\bif\b.*\?$|\bif\b.*\bwould\b.*\?$`, Type: analysis.Hypothetical, Weight: 0.85, Priority: 2},
		{ID: "detail.comparison", Pattern: `\b(difference between|compared? (to|with)|versus|vs\.?|better than|worse than|prefer)\b`, Type: analysis.Comparative, Weight: 0.85, Priority: 3},
		{ID: "detail.which-better", Pattern: `\bwhich\b.*\b(better|best|faster|cheaper|prefer)\b`, Type: analysis.Comparative, Weight: 0.9, Priority: 3},
		{ID: "detail.polite-request", Pattern: `\b(can|could|would|will) you (please )?(tell|explain|show|help|describe|walk)\b`, Type: analysis.Procedural, Weight: 0.85, Priority: 4},
		{ID: "detail.embedded-wh", Pattern: `\b(tell me|explain|i wonder|im wondering|i am wondering) (what|who|where|when|why|how|which|if|whether)\b`, Type: analysis.Factual, Weight: 0.8, Priority: 5},
		{ID: "detail.do-you-know", Pattern: `\b(do you know|any idea|does anyone know)\b`, Type: analysis.Conversational, Weight: 0.75, Priority: 6},
		{ID: "detail.tag-question", Pattern: `\b(right|correct|isnt it|arent they|dont you think|isnt that so)\s*\?$`, Type: analysis.Confirmatory, Weight: 0.85, Priority: 6},
		{ID: "detail.why", Pattern: `\bwhy\b`, Type: analysis.Causal, Weight: 0.8, Priority: 7},
		{ID: "detail.reason-for", Pattern: `\b(what is the reason|whats the reason|how come|what caused)\b`, Type: analysis.Causal, Weight: 0.85, Priority: 7},
		{ID: "detail.wh-anywhere", Pattern: `\b(what|who|where|when|why|how|which)\b.*\?$`, Type: analysis.Factual, Weight: 0.75, Priority: 8},
		{ID: "detail.aux-no-mark", Pattern: `^(is|are|was|were|do|does|did|can|could|will|would|should|has|have)\s+(you|it|there|this|that|we|they|i|he|she)\b`, Type: analysis.Confirmatory, Weight: 0.7, Priority: 9},
		{ID: "detail.trailing-mark", Pattern: `\?$`, Type: analysis.Conversational, Weight: 0.75, Priority: 10},
	}
}
