package search

import (
	"regexp"
	"sort"
	"strings"
)

// Segment is a run of text that either matched a query word or did not.
type Segment struct {
	Text  string
	Match bool
}

// Highlighter finds case-insensitive occurrences of query words.
type Highlighter struct {
	pattern *regexp.Regexp
}

// NewHighlighter compiles words into one alternation. Words are escaped so
// regex metacharacters match literally, and longer words are tried first so
// "datab" wins over "data" at the same position. With no words the
// highlighter matches nothing.
func NewHighlighter(words []string) *Highlighter {
	escaped := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			escaped = append(escaped, regexp.QuoteMeta(w))
		}
	}
	if len(escaped) == 0 {
		return &Highlighter{}
	}
	sort.SliceStable(escaped, func(i, j int) bool {
		return len(escaped[i]) > len(escaped[j])
	})
	return &Highlighter{pattern: regexp.MustCompile(`(?i)(` + strings.Join(escaped, "|") + `)`)}
}

// Segments splits text into alternating unmatched and matched runs. The
// concatenation of every segment's Text is always text.
func (h *Highlighter) Segments(text string) []Segment {
	if h.pattern == nil || text == "" {
		return []Segment{{Text: text}}
	}
	locs := h.pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []Segment{{Text: text}}
	}
	segments := make([]Segment, 0, 2*len(locs)+1)
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			segments = append(segments, Segment{Text: text[last:loc[0]]})
		}
		segments = append(segments, Segment{Text: text[loc[0]:loc[1]], Match: true})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// Mark wraps every match in <mark></mark>. The text is not escaped; renderers
// that emit HTML should build from Segments instead.
func (h *Highlighter) Mark(text string) string {
	if h.pattern == nil {
		return text
	}
	return h.pattern.ReplaceAllString(text, "<mark>$1</mark>")
}

// Highlight is a one-shot Mark.
func Highlight(text string, words []string) string {
	return NewHighlighter(words).Mark(text)
}
