package entities

import (
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/cache"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
	"github.com/wysRocket/dao-copilot-sub005/pkg/utils"
)

// Recognizer supplements the rule-based categories, e.g. with a tagger.
type Recognizer interface {
	Recognize(text string) ([]analysis.Entity, error)
}

type categoryRules struct {
	category   analysis.EntityCategory
	confidence float64
	patterns   []*regexp.Regexp
}

// categoryOrder fixes the order categories are applied and reported in.
var categoryOrder = []analysis.EntityCategory{
	analysis.Person, analysis.Time, analysis.Number, analysis.Location,
}

func defaultRules() map[analysis.EntityCategory]categoryRules {
	return map[analysis.EntityCategory]categoryRules{
		analysis.Person: {
			category:   analysis.Person,
			confidence: 0.7,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`),
				regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`),
			},
		},
		analysis.Time: {
			category:   analysis.Time,
			confidence: 0.85,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s*[ap]\.?m\.?)?`),
				regexp.MustCompile(`(?i)\b\d{1,2}\s*[ap]\.?m\b\.?`),
				regexp.MustCompile(`(?i)\b(?:today|tomorrow|yesterday|tonight|noon|midnight)\b`),
				regexp.MustCompile(`(?i)\b(?:next|last|this)\s+(?:week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
				regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
				regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)(?:\s+\d{1,2})?\b`),
				regexp.MustCompile(`\b(?:19|20)\d{2}\b`),
			},
		},
		analysis.Number: {
			category:   analysis.Number,
			confidence: 0.9,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d+(?:[.,]\d+)*%?`),
				regexp.MustCompile(`(?i)\b(?:one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|twenty|thirty|fifty|hundred|thousand|million|billion)\b`),
			},
		},
		analysis.Location: {
			category:   analysis.Location,
			confidence: 0.75,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:in|at|from|to|near|of|about)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)`),
				regexp.MustCompile(`(?i)\b(?:france|germany|spain|italy|china|japan|india|brazil|canada|mexico|russia|england|australia|london|paris|berlin|tokyo|new york|madrid|rome)\b`),
			},
		},
	}
}

type Options struct {
	CacheSize  int
	CacheTTL   time.Duration
	Recognizer Recognizer
}

// Extractor applies per-category rules and caches results by a hash of the
// raw text.
type Extractor struct {
	rules      map[analysis.EntityCategory]categoryRules
	cache      *cache.LRU[[]analysis.Entity]
	recognizer Recognizer
	log        *zap.Logger
}

func NewExtractor(opts Options) *Extractor {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 500
	}
	return &Extractor{
		rules:      defaultRules(),
		cache:      cache.NewLRU[[]analysis.Entity](opts.CacheSize, opts.CacheTTL),
		recognizer: opts.Recognizer,
		log:        logger.Named("entities"),
	}
}

// Extract returns the entities of text. The returned slice belongs to the
// caller.
func (x *Extractor) Extract(text string) []analysis.Entity {
	key := utils.TextHashHex(text)
	if cached, ok := x.cache.Get(key); ok {
		return append([]analysis.Entity(nil), cached...)
	}

	found := x.extract(text)
	x.cache.Put(key, found)
	return append([]analysis.Entity(nil), found...)
}

func (x *Extractor) extract(text string) []analysis.Entity {
	var out []analysis.Entity
	for _, category := range categoryOrder {
		rules := x.rules[category]
		var taken [][2]int
		for _, re := range rules.patterns {
			for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
				start, end := loc[0], loc[1]
				if len(loc) >= 4 && loc[2] >= 0 {
					start, end = loc[2], loc[3]
				}
				if overlaps(taken, start, end) {
					continue
				}
				taken = append(taken, [2]int{start, end})
				out = append(out, analysis.Entity{
					Text:       text[start:end],
					Category:   category,
					Position:   start,
					Confidence: rules.confidence,
				})
			}
		}
	}

	if x.recognizer != nil {
		extra, err := x.recognizer.Recognize(text)
		if err != nil {
			x.log.Warn("Entity recognizer failed", zap.Error(err))
		}
		for _, e := range extra {
			if !overlapsCategory(out, e) {
				out = append(out, e)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

func overlapsCategory(existing []analysis.Entity, e analysis.Entity) bool {
	for _, x := range existing {
		if x.Category == e.Category && e.Position < x.Position+len(x.Text) && x.Position < e.Position+len(e.Text) {
			return true
		}
	}
	return false
}

func (x *Extractor) CacheStats() cache.Stats {
	return x.cache.Stats()
}

func (x *Extractor) Sweep() int {
	return x.cache.Sweep()
}

func (x *Extractor) Purge() {
	x.cache.Purge()
}
