package patterns

import "github.com/wysRocket/dao-copilot-sub005/internal/analysis"

// earlyExitConfidence stops the detailed scan once a match is this strong.
const earlyExitConfidence = 0.9

type Router struct {
	catalog *Catalog
}

func NewRouter(catalog *Catalog) *Router {
	return &Router{catalog: catalog}
}

func (r *Router) Catalog() *Catalog { return r.catalog }

type FastMatch struct {
	Rule       *Rule
	Position   int
	Confidence float64
}

// FastConfidence maps a rule weight onto the fast-path confidence scale,
// clamped to 1.
func (r *Router) FastConfidence(weight float64) float64 {
	opts := r.catalog.opts
	c := opts.BaseFastPathConfidence + weight*opts.FastPathBoost
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

// FastPath returns the first fast rule, in priority order, that matches the
// normalized text. A match below threshold is reported as a miss so the
// caller falls through to the detailed path.
func (r *Router) FastPath(normalized string, threshold float64) (FastMatch, bool) {
	for _, rule := range r.catalog.fast {
		loc := rule.Pattern.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		m := FastMatch{
			Rule:       rule,
			Position:   loc[0],
			Confidence: r.FastConfidence(rule.Weight),
		}
		if m.Confidence < threshold {
			return m, false
		}
		return m, true
	}
	return FastMatch{}, false
}

type PatternScore struct {
	Matches    []analysis.PatternMatch
	Best       *Rule
	Confidence float64
}

// ScorePatterns scans the detailed rules in priority order. The signal is
// the weight of the strongest match; the scan stops at the first match of at
// least 0.9.
func (r *Router) ScorePatterns(normalized string) PatternScore {
	var score PatternScore
	for _, rule := range r.catalog.detailed {
		loc := rule.Pattern.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		score.Matches = append(score.Matches, analysis.PatternMatch{
			RuleID:     rule.ID,
			Position:   loc[0],
			Confidence: rule.Weight,
			Weight:     rule.Weight,
		})
		if rule.Weight > score.Confidence {
			score.Confidence = rule.Weight
			score.Best = rule
		}
		if score.Confidence >= earlyExitConfidence {
			break
		}
	}
	return score
}
