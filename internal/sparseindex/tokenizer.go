package sparseindex

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
)

// PolicyAnalyzerName is the custom analyzer used to tokenize policy chunk
// content. It wraps Bleve's built-in unicode tokenizer (which tolerates
// Korean, Latin, and digits) with a lowercase filter.
const PolicyAnalyzerName = "policy_analyzer"

var setupOnce sync.Once
var sharedMapping *mapping.IndexMappingImpl

// DefaultStopWords is the stop-word set removed at tokenization time.
// Kept small and conservative: common Korean particles/connectives plus
// a handful of generic English stop words, since the corpus is
// Korean-dominant but must tolerate Latin text.
var DefaultStopWords = []string{
	"그리고", "그러나", "하지만", "또한", "그래서",
	"the", "a", "an", "and", "or", "of", "to", "in", "is", "are",
}

// DefaultKeywordBoost is the domain-keyword whitelist that receives a
// duplication boost at indexing time. It contains the default
// dynamic-threshold keyword adjustment keys of package config (지원금, 창업,
// R&D) plus three more terms.
var DefaultKeywordBoost = []string{"지원금", "창업", "r&d", "지원", "사업", "보조금"}

func policyMapping() *mapping.IndexMappingImpl {
	setupOnce.Do(func() {
		m := bleve.NewIndexMapping()
		_ = m.AddCustomAnalyzer(PolicyAnalyzerName, map[string]interface{}{
			"type":      custom.Name,
			"tokenizer": "unicode",
			"token_filters": []string{
				lowercase.Name,
			},
		})
		m.DefaultAnalyzer = PolicyAnalyzerName
		sharedMapping = m
	})
	return sharedMapping
}

// Tokenize splits text into normalized tokens: lowercase,
// split on whitespace/punctuation (via Bleve's unicode tokenizer), drop
// tokens shorter than 2 runes, drop stop words, and duplicate whitelisted
// domain keywords so they carry extra weight in the term-frequency count.
func Tokenize(text string) []string {
	analyzer := policyMapping().AnalyzerNamed(PolicyAnalyzerName)
	if analyzer == nil {
		return fallbackTokenize(text)
	}

	stream := analyzer.Analyze([]byte(text))
	stopSet := buildSet(DefaultStopWords)
	boostSet := buildSet(DefaultKeywordBoost)

	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if len([]rune(term)) < 2 {
			continue
		}
		if _, stopped := stopSet[term]; stopped {
			continue
		}
		tokens = append(tokens, term)
		if _, boosted := boostSet[term]; boosted {
			tokens = append(tokens, term)
		}
	}
	return tokens
}

// fallbackTokenize is used only if the Bleve analyzer ever fails to
// resolve by name; it reproduces the same rules with a plain scanner.
func fallbackTokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
	stopSet := buildSet(DefaultStopWords)
	boostSet := buildSet(DefaultKeywordBoost)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stopped := stopSet[f]; stopped {
			continue
		}
		tokens = append(tokens, f)
		if _, boosted := boostSet[f]; boosted {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isWordRune(r rune) bool {
	return (r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		r == '&' ||
		(r >= 0xAC00 && r <= 0xD7A3) || // Hangul syllables
		(r >= 0x1100 && r <= 0x11FF) // Hangul jamo
}

func buildSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
