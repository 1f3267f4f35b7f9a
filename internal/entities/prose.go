package entities

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
)

const proseConfidence = 0.65

var proseLabels = map[string]analysis.EntityCategory{
	"PERSON": analysis.Person,
	"GPE":    analysis.Location,
}

// ProseRecognizer adds PERSON and GPE entities found by prose's tagger. It
// is much slower than the rule set and is only wired in when NER is enabled.
type ProseRecognizer struct{}

func NewProseRecognizer() *ProseRecognizer {
	return &ProseRecognizer{}
}

func (p *ProseRecognizer) Recognize(text string) ([]analysis.Entity, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to tag text: %w", err)
	}

	var out []analysis.Entity
	searchFrom := 0
	for _, ent := range doc.Entities() {
		category, ok := proseLabels[ent.Label]
		if !ok {
			continue
		}
		pos := strings.Index(text[searchFrom:], ent.Text)
		if pos < 0 {
			continue
		}
		pos += searchFrom
		searchFrom = pos + len(ent.Text)

		out = append(out, analysis.Entity{
			Text:       ent.Text,
			Category:   category,
			Position:   pos,
			Confidence: proseConfidence,
		})
	}
	return out, nil
}
