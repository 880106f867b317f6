// Package render turns page view models into HTML. Templates are embedded at
// build time; every piece of record text goes through html/template escaping,
// including the runs inside highlight marks.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Meta is the per-page head and header content.
type Meta struct {
	Title       string
	Description string
	SiteName    string
	// SearchText pre-fills the search box.
	SearchText string
}

// Item is one document teaser linking to its detail page.
type Item struct {
	URL     string
	Title   []search.Segment
	Summary []search.Segment
}

// PlainItem builds an Item with no highlighting.
func PlainItem(url, title, summary string) Item {
	return Item{
		URL:     url,
		Title:   []search.Segment{{Text: title}},
		Summary: []search.Segment{{Text: summary}},
	}
}

// HighlightedItem builds an Item whose title and summary mark h's matches.
func HighlightedItem(url, title, summary string, h *search.Highlighter) Item {
	return Item{URL: url, Title: h.Segments(title), Summary: h.Segments(summary)}
}

type IndexView struct {
	Meta  Meta
	Items []Item
	Error string
}

type SearchView struct {
	Meta       Meta
	Header     string
	Items      []Item
	Pagination *Pagination
	Error      string
}

// Pagination is the navigation row under search results. Empty URLs mean the
// control is hidden.
type Pagination struct {
	PrevURL string
	NextURL string
	Links   []PaginationLink
}

type PaginationLink struct {
	Number   int
	URL      string
	Active   bool
	Ellipsis bool
}

type DocumentView struct {
	Meta Meta
	// Breadcrumb is the title of the first record with the requested ID,
	// shown even when the slug did not match.
	Breadcrumb string
	// Message replaces the document body when the request could not be served.
	Message      string
	Document     *DocumentDetail
	Related      []Item
	RelatedError string
}

type DocumentDetail struct {
	ID          string
	Title       string
	Summary     string
	Pages       int
	Views       int
	DownloadURL string
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{"index", "search", "document"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

func (r *Renderer) Index(w io.Writer, v IndexView) error {
	return r.execute(w, "index", v)
}

func (r *Renderer) Search(w io.Writer, v SearchView) error {
	return r.execute(w, "search", v)
}

func (r *Renderer) Document(w io.Writer, v DocumentView) error {
	return r.execute(w, "document", v)
}

// execute renders into a buffer first so a template error never leaves a
// half-written page on the wire.
func (r *Renderer) execute(w io.Writer, page string, data any) error {
	var buf bytes.Buffer
	if err := r.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("rendering %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
