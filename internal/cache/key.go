package cache

import (
	"regexp"
	"strings"

	"github.com/wysRocket/dao-copilot-sub005/pkg/utils"
)

// LongKeyThreshold is the normalized length above which a key is replaced by
// a fixed-width digest.
const LongKeyThreshold = 100

// Normalize strips ':', so no literal key can start with hashedKeyPrefix.
const hashedKeyPrefix = "h:"

var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s?!.]+`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, drops everything but letters, digits,
// underscores, whitespace and ?!., and collapses whitespace.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = disallowedChars.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Key derives the cache key for text. It is a pure function of its input.
func Key(text string) string {
	normalized := Normalize(text)
	if len(normalized) > LongKeyThreshold {
		return hashedKeyPrefix + utils.HashString(normalized)
	}
	return normalized
}

func IsHashed(key string) bool {
	return strings.HasPrefix(key, hashedKeyPrefix)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "um": true, "uh": true, "please": true,
}

// Compress shrinks a stored key by dropping filler words. It is lossy and
// only ever applied to the key under which a result is stored; analysis
// always runs on the original text.
func Compress(key string) string {
	if IsHashed(key) {
		return key
	}
	fields := strings.Fields(key)
	kept := fields[:0]
	for _, f := range fields {
		if !stopWords[strings.TrimRight(f, "?!.")] {
			kept = append(kept, f)
		} else if trail := strings.TrimLeft(f, "abcdefghijklmnopqrstuvwxyz"); trail != "" && len(kept) > 0 {
			kept[len(kept)-1] += trail
		}
	}
	if len(kept) == 0 {
		return key
	}
	return strings.Join(kept, " ")
}
