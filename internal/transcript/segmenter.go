package transcript

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const defaultMaxUtteranceLength = 300

// Utterance is one sentence-sized piece of a transcript. Offset is the byte
// position of Text in the original input.
type Utterance struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

type Segmenter struct {
	maxLength int
}

// NewSegmenter splits transcripts into utterances of at most maxLength
// runes. Longer sentences are cut on word boundaries.
func NewSegmenter(maxLength int) *Segmenter {
	if maxLength <= 0 {
		maxLength = defaultMaxUtteranceLength
	}
	return &Segmenter{maxLength: maxLength}
}

func (s *Segmenter) Segment(text string) ([]Utterance, error) {
	var out []Utterance
	cursor := 0

	for _, line := range strings.Split(text, "\n") {
		lineStart := cursor
		cursor += len(line) + 1

		if strings.TrimSpace(line) == "" {
			continue
		}

		sentences, err := sentences(line)
		if err != nil {
			return nil, err
		}

		pos := 0
		for _, sentence := range sentences {
			for _, piece := range s.chunk(sentence) {
				idx := strings.Index(line[pos:], piece)
				offset := lineStart
				if idx >= 0 {
					offset += pos + idx
					pos += idx + len(piece)
				}
				out = append(out, Utterance{Text: piece, Offset: offset})
			}
		}
	}

	logger.Debug("Transcript segmented", zap.Int("bytes", len(text)), zap.Int("utterances", len(out)))
	return out, nil
}

func sentences(line string) ([]string, error) {
	doc, err := prose.NewDocument(line,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to segment transcript: %w", err)
	}

	var out []string
	for _, sent := range doc.Sentences() {
		if t := strings.TrimSpace(sent.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Segmenter) chunk(sentence string) []string {
	if utf8.RuneCountInString(sentence) <= s.maxLength {
		return []string{sentence}
	}

	words := strings.Fields(sentence)
	var chunks []string
	var current strings.Builder
	size := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)
		if size > 0 && size+1+wordLen > s.maxLength {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte(' ')
			size++
		}
		current.WriteString(word)
		size += wordLen
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
