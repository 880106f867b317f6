// Package search ranks catalog records against a hyphen-separated query and
// splits the ranked list into fixed-size pages.
//
// Relevance is a fixed precedence, not a sum: an exact title-slug match scores
// 100, the full phrase inside the title 75, any single word in the title 50
// and any word in the summary 25. Records scoring 0 are dropped. Ties keep the
// order the records were loaded in.
package search

import "strings"

// Query is a parsed search request.
type Query struct {
	// Raw is the query parameter as received.
	Raw string
	// Words are the lowercased, non-empty parts of Raw split on hyphens.
	// Whitespace is kept inside a word; search-box text goes through
	// QueryFromInput first.
	Words []string
}

// ParseQuery splits a `query` parameter such as "data-science" into words.
func ParseQuery(raw string) Query {
	words := []string{}
	for _, w := range strings.Split(strings.ToLower(raw), "-") {
		if w != "" {
			words = append(words, w)
		}
	}
	return Query{Raw: raw, Words: words}
}

// Empty reports whether the query has no words to match.
func (q Query) Empty() bool {
	return len(q.Words) == 0
}

// Slug is the normalized form compared against title slugs.
func (q Query) Slug() string {
	return strings.Join(q.Words, "-")
}

// Phrase is the words joined with single spaces.
func (q Query) Phrase() string {
	return strings.Join(q.Words, " ")
}

// QueryFromInput turns search-box text into a query parameter: trimmed,
// lowercased, whitespace runs replaced by hyphens.
func QueryFromInput(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "-")
}

// Display is the query as shown back to the user, hyphens read as spaces.
func (q Query) Display() string {
	return strings.ReplaceAll(q.Raw, "-", " ")
}
