// Package catalog loads document metadata from remote CSV feeds. A load
// fetches a newline-delimited list of feed URLs, fetches every feed in
// parallel and concatenates the parsed records in list order.
package catalog

import (
	"regexp"
	"strings"
)

// Record is one document's metadata as published in a feed. Records are
// never modified after a load.
type Record struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Pages   int    `json:"pages"`
	Views   int    `json:"views"`
}

var (
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}\x{FEFF}]+`)
	nonSlugRune   = regexp.MustCompile(`[^A-Za-z0-9_\-]`)
)

// Slugify lowercases title, turns whitespace runs into hyphens and drops
// everything that is not a word character or a hyphen.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = whitespaceRun.ReplaceAllString(s, "-")
	return nonSlugRune.ReplaceAllString(s, "")
}

// Slug is the URL form of the record's title.
func (r Record) Slug() string {
	return Slugify(r.Title)
}

// Path is the site-relative address of the record's detail page.
func (r Record) Path() string {
	return "/pdf/" + strings.TrimSpace(r.ID) + "-" + r.Slug()
}

// Find returns the record whose trimmed ID equals id and whose title slug
// equals slug.
func Find(records []Record, id, slug string) (Record, bool) {
	id = strings.TrimSpace(id)
	for _, r := range records {
		if strings.TrimSpace(r.ID) == id && r.Slug() == slug {
			return r, true
		}
	}
	return Record{}, false
}

// FindByID returns the first record with the given ID regardless of title.
func FindByID(records []Record, id string) (Record, bool) {
	id = strings.TrimSpace(id)
	for _, r := range records {
		if strings.TrimSpace(r.ID) == id {
			return r, true
		}
	}
	return Record{}, false
}
