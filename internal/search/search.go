package search

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
)

// Result is a record paired with its relevance for one query.
type Result struct {
	Record    catalog.Record `json:"record"`
	Relevance int            `json:"relevance"`
}

// Response is one page of a ranked search.
type Response struct {
	Query Query `json:"-"`
	Total int   `json:"total_hits"`
	// TopRelevance is the best score across all pages, 0 when nothing matched.
	TopRelevance int        `json:"top_relevance"`
	Window       PageWindow `json:"window"`
	Results      []Result   `json:"results"`
	Links        []PageLink `json:"links,omitempty"`
	Prev         int        `json:"prev,omitempty"`
	Next         int        `json:"next,omitempty"`
}

// Rank scores every record and returns the matches, best first. Equal scores
// keep their input order.
func Rank(q Query, records []catalog.Record) []Result {
	matches := make([]Result, 0)
	if q.Empty() {
		return matches
	}
	for _, r := range records {
		if score := Score(q, r); score > RelevanceNone {
			matches = append(matches, Result{Record: r, Relevance: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Relevance > matches[j].Relevance
	})
	return matches
}

// Search ranks records against q and returns the requested page.
func Search(q Query, records []catalog.Record, page int) *Response {
	matches := Rank(q, records)
	window := NewWindow(len(matches), page)
	start, end := window.Bounds(len(matches))
	top := RelevanceNone
	if len(matches) > 0 {
		top = matches[0].Relevance
	}
	return &Response{
		Query:        q,
		Total:        len(matches),
		TopRelevance: top,
		Window:       window,
		Results:      matches[start:end],
		Links:        window.Links(),
		Prev:         window.Prev(),
		Next:         window.Next(),
	}
}
