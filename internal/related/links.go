package related

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
)

// DocumentPath is the site-relative detail page path for r.
func DocumentPath(r catalog.Record) string {
	return r.Path()
}

// SuggestionURL links r under a mirror domain. An empty domain yields the
// plain path.
func SuggestionURL(domain string, r catalog.Record) string {
	return strings.TrimRight(domain, "/") + DocumentPath(r)
}

// Suggestion is one related document with its resolved link.
type Suggestion struct {
	Record catalog.Record
	URL    string
}

// Suggest picks n records other than excludeID and links each under its own
// randomly chosen domain.
func (p *Picker) Suggest(records []catalog.Record, domains []string, excludeID string, n int) []Suggestion {
	picked := p.Pick(records, excludeID, n)
	out := make([]Suggestion, 0, len(picked))
	for _, r := range picked {
		out = append(out, Suggestion{Record: r, URL: SuggestionURL(p.Domain(domains), r)})
	}
	return out
}
