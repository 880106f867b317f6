package search

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
)

// Relevance levels, highest first.
const (
	RelevanceExactSlug   = 100
	RelevanceTitlePhrase = 75
	RelevanceTitleWord   = 50
	RelevanceSummaryWord = 25
	RelevanceNone        = 0
)

// Score rates one record against q. The first rule that matches wins.
func Score(q Query, r catalog.Record) int {
	if q.Empty() {
		return RelevanceNone
	}
	if catalog.Slugify(r.Title) == q.Slug() {
		return RelevanceExactSlug
	}
	title := strings.ToLower(r.Title)
	if strings.Contains(title, q.Phrase()) {
		return RelevanceTitlePhrase
	}
	if containsAny(title, q.Words) {
		return RelevanceTitleWord
	}
	if containsAny(strings.ToLower(r.Summary), q.Words) {
		return RelevanceSummaryWord
	}
	return RelevanceNone
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
