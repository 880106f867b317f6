package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/related"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/site/render"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
)

type fakeCatalog struct {
	records       []catalog.Record
	err           error
	domains       []string
	domainsErr    error
	cached        bool
	invalidateErr error
}

func (f *fakeCatalog) Records(ctx context.Context) ([]catalog.Record, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.records, f.cached, nil
}

func (f *fakeCatalog) Domains(ctx context.Context) ([]string, error) {
	return f.domains, f.domainsErr
}

func (f *fakeCatalog) Invalidate(ctx context.Context) (int64, error) {
	return 1, f.invalidateErr
}

func (f *fakeCatalog) Cached() bool { return f.cached }

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

var errFeedDown = fmt.Errorf("%w: list fetch failed", apperrors.ErrFeedUnavailable)

func manyRecords(n int, title func(int) string) []catalog.Record {
	out := make([]catalog.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, catalog.Record{
			ID:      fmt.Sprint(i),
			Title:   title(i),
			Summary: fmt.Sprintf("summary %d", i),
			Pages:   i,
			Views:   i * 10,
		})
	}
	return out
}

func testSite() config.SiteConfig {
	return config.SiteConfig{
		BaseURL:         "https://docs.example",
		DownloadURL:     "https://dl.example/document/%s/%s",
		SiteName:        "English Resources",
		SuggestionCount: 10,
	}
}

func newTestServer(t *testing.T, cat *fakeCatalog, tracker Tracker) http.Handler {
	t.Helper()
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	h := New(cat, related.New(rand.NewPCG(1, 2)), renderer, tracker, nil, testSite())
	mux := http.NewServeMux()
	h.Register(mux, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API", "1")
			next.ServeHTTP(w, r)
		})
	})
	return mux
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) *html.Node {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, "id") == id }
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return strings.Contains(" "+attr(n, "class")+" ", " "+class+" ") }
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func textOf(t *testing.T, doc *html.Node, id string) string {
	t.Helper()
	nodes := findAll(doc, byID(id))
	if len(nodes) != 1 {
		t.Fatalf("expected one #%s, found %d", id, len(nodes))
	}
	return text(nodes[0])
}

func postLinks(doc *html.Node) []string {
	var hrefs []string
	for _, title := range findAll(doc, byClass("related-post-title")) {
		for _, a := range findAll(title, func(n *html.Node) bool { return n.Data == "a" }) {
			hrefs = append(hrefs, attr(a, "href"))
		}
	}
	return hrefs
}

func TestIndex(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{records: manyRecords(15, func(i int) string { return fmt.Sprintf("Doc %d", i) })}, nil)
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	links := postLinks(parseBody(t, rec))
	if len(links) != 10 {
		t.Fatalf("expected 10 documents, got %d", len(links))
	}
	for _, l := range links {
		if !strings.HasPrefix(l, "https://docs.example/pdf/") {
			t.Errorf("link %q not under base URL", l)
		}
	}
}

func TestIndexFeedError(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{err: errFeedDown}, nil)
	rec := get(t, srv, "/")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if got := textOf(t, parseBody(t, rec), "results"); got != "Error loading documents." {
		t.Errorf("results = %q", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{records: manyRecords(3, func(i int) string { return "x" })}, nil)
	for _, target := range []string{"/search", "/search?query=", "/search?query=---"} {
		rec := get(t, srv, target)
		if got := textOf(t, parseBody(t, rec), "header"); got != "Please enter a search query." {
			t.Errorf("%s header = %q", target, got)
		}
	}
}

func TestSearchExactSlugMatch(t *testing.T) {
	tracker := &recordingTracker{}
	cat := &fakeCatalog{records: []catalog.Record{{ID: "1", Title: "Data Science", Summary: "numbers"}}}
	srv := newTestServer(t, cat, tracker)

	rec := get(t, srv, "/search?query=data-science")
	doc := parseBody(t, rec)
	if got := textOf(t, doc, "header"); got != "1 document found for 'data science'." {
		t.Errorf("header = %q", got)
	}
	if len(findAll(doc, byClass("pagination"))) != 0 {
		t.Error("single page should have no pagination")
	}
	titles := findAll(doc, func(n *html.Node) bool { return n.Data == "title" })
	if len(titles) != 1 || text(titles[0]) != "SCRIBD documents related to data science" {
		t.Errorf("page title = %v", titles)
	}
	if marks := findAll(doc, func(n *html.Node) bool { return n.Data == "mark" }); len(marks) != 2 {
		t.Errorf("expected both title words marked, got %d marks", len(marks))
	}

	if len(tracker.events) != 1 {
		t.Fatalf("expected one tracked event, got %d", len(tracker.events))
	}
	ev := tracker.events[0].(analytics.SearchEvent)
	if ev.TopRelevance != 100 || ev.TotalHits != 1 || ev.Query != "data-science" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSearchPagination(t *testing.T) {
	cat := &fakeCatalog{records: manyRecords(25, func(i int) string { return fmt.Sprintf("Grammar %d", i) })}
	srv := newTestServer(t, cat, nil)

	doc := parseBody(t, get(t, srv, "/search?query=grammar&page=2"))
	if got := textOf(t, doc, "header"); got != "25 documents found for 'grammar'." {
		t.Errorf("header = %q", got)
	}
	links := postLinks(doc)
	if len(links) != 10 || links[0] != "https://docs.example/pdf/11-grammar-11" {
		t.Errorf("page 2 links = %v", links)
	}
	pag := findAll(doc, byClass("pagination"))
	if len(pag) != 1 {
		t.Fatalf("expected pagination, got %d", len(pag))
	}
	var labels []string
	for _, a := range findAll(pag[0], func(n *html.Node) bool { return n.Data == "a" }) {
		labels = append(labels, text(a))
	}
	if got := strings.Join(labels, ","); got != "Prev,1,2,3,Next" {
		t.Errorf("pagination = %s", got)
	}
	active := findAll(pag[0], byClass("active"))
	if len(active) != 1 || attr(active[0], "href") != "/search?query=grammar&page=2" {
		t.Errorf("active link = %v", active)
	}
}

func TestSearchPageOutOfRange(t *testing.T) {
	cat := &fakeCatalog{records: manyRecords(5, func(i int) string { return "Grammar" })}
	doc := parseBody(t, get(t, newTestServer(t, cat, nil), "/search?query=grammar&page=9"))
	if got := textOf(t, doc, "header"); got != "5 documents found for 'grammar'." {
		t.Errorf("header = %q", got)
	}
	if n := len(postLinks(doc)); n != 0 {
		t.Errorf("expected no results on an out-of-range page, got %d", n)
	}
}

func TestSearchNoMatchSuggests(t *testing.T) {
	cat := &fakeCatalog{records: manyRecords(12, func(i int) string { return fmt.Sprintf("Doc %d", i) })}
	doc := parseBody(t, get(t, newTestServer(t, cat, nil), "/search?query=zebra"))
	want := "No documents found for 'zebra'. But, these documents might be interesting for you."
	if got := textOf(t, doc, "header"); got != want {
		t.Errorf("header = %q", got)
	}
	if n := len(postLinks(doc)); n != 10 {
		t.Errorf("expected 10 suggestions, got %d", n)
	}
}

func TestSearchRedirectsFreeText(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	rec := get(t, srv, "/search?q=+Data++Science+")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/search?query=data-science" {
		t.Errorf("Location = %q", loc)
	}
}

func TestSearchFeedError(t *testing.T) {
	rec := get(t, newTestServer(t, &fakeCatalog{err: errFeedDown}, nil), "/search?query=x")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
	if got := textOf(t, parseBody(t, rec), "results"); got != "Error loading search results." {
		t.Errorf("results = %q", got)
	}
}

func TestDocumentFound(t *testing.T) {
	records := manyRecords(15, func(i int) string { return fmt.Sprintf("Doc %d", i) })
	records[2].Summary = strings.Repeat("é", 200)
	tracker := &recordingTracker{}
	cat := &fakeCatalog{records: records, domains: []string{"https://mirror.example"}}
	rec := get(t, newTestServer(t, cat, tracker), "/pdf/3-doc-3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseBody(t, rec)

	titles := findAll(doc, func(n *html.Node) bool { return n.Data == "title" })
	if text(titles[0]) != "[PDF] Doc 3 | English Resources" {
		t.Errorf("title = %q", text(titles[0]))
	}
	meta := findAll(doc, func(n *html.Node) bool { return n.Data == "meta" && attr(n, "name") == "description" })
	if len(meta) != 1 || attr(meta[0], "content") != strings.Repeat("é", 160) {
		t.Errorf("meta description not truncated to 160 characters")
	}
	if got := textOf(t, doc, "breadcrumb"); got != "Home » Doc 3" {
		t.Errorf("breadcrumb = %q", got)
	}
	dl := findAll(doc, byClass("download-button"))
	if len(dl) != 1 || attr(dl[0], "href") != "https://dl.example/document/3/doc-3" {
		t.Errorf("download = %v", dl)
	}
	related := postLinks(doc)
	if len(related) != 10 {
		t.Fatalf("expected 10 related, got %d", len(related))
	}
	for _, l := range related {
		if !strings.HasPrefix(l, "https://mirror.example/pdf/") || l == "https://mirror.example/pdf/3-doc-3" {
			t.Errorf("bad related link %q", l)
		}
	}
	ev, ok := tracker.events[0].(analytics.ViewEvent)
	if !ok || !ev.Found || ev.DocumentID != "3" {
		t.Errorf("view event = %+v", tracker.events[0])
	}
}

func TestDocumentErrors(t *testing.T) {
	records := []catalog.Record{{ID: "7", Title: "Real Title", Summary: "s"}}
	tests := []struct {
		name       string
		cat        *fakeCatalog
		path       string
		wantStatus int
		wantTitle  string
		wantCrumb  string
	}{
		{"malformed", &fakeCatalog{records: records}, "/pdf/abc", http.StatusBadRequest, "Error: Missing document ID or title in URL.", ""},
		{"no slug", &fakeCatalog{records: records}, "/pdf/7-", http.StatusBadRequest, "Error: Missing document ID or title in URL.", ""},
		{"slug mismatch", &fakeCatalog{records: records}, "/pdf/7-other-title", http.StatusNotFound, "Document not found for ID: 7 and title: other-title", "Home » Real Title"},
		{"unknown id", &fakeCatalog{records: records}, "/pdf/8-real-title", http.StatusNotFound, "Document not found for ID: 8 and title: real-title", ""},
		{"feed down", &fakeCatalog{err: errFeedDown}, "/pdf/7-real-title", http.StatusBadGateway, "Error loading document data.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(t, tt.cat, nil), tt.path)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			doc := parseBody(t, rec)
			if got := textOf(t, doc, "title-section"); got != tt.wantTitle {
				t.Errorf("message = %q", got)
			}
			if got := textOf(t, doc, "breadcrumb"); got != tt.wantCrumb {
				t.Errorf("breadcrumb = %q", got)
			}
		})
	}
}

func TestDocumentDomainsError(t *testing.T) {
	cat := &fakeCatalog{
		records:    manyRecords(3, func(i int) string { return fmt.Sprintf("Doc %d", i) }),
		domainsErr: errors.New("urls.txt unreachable"),
	}
	rec := get(t, newTestServer(t, cat, nil), "/pdf/1-doc-1")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := textOf(t, parseBody(t, rec), "suggestion-section"); got != "Error loading related documents." {
		t.Errorf("suggestions = %q", got)
	}
}

func TestAPISearch(t *testing.T) {
	cat := &fakeCatalog{records: []catalog.Record{
		{ID: "1", Title: "Intro to Data", Summary: "a"},
		{ID: "2", Title: "Data Science", Summary: "b"},
	}}
	srv := newTestServer(t, cat, nil)

	rec := get(t, srv, "/api/v1/search?query=data-science")
	if rec.Code != http.StatusOK || rec.Header().Get("X-API") != "1" {
		t.Fatalf("status = %d, wrapped = %q", rec.Code, rec.Header().Get("X-API"))
	}
	var body struct {
		Query        string   `json:"query"`
		Words        []string `json:"words"`
		Total        int      `json:"total_hits"`
		TopRelevance int      `json:"top_relevance"`
		Results      []struct {
			Record    catalog.Record `json:"record"`
			Relevance int            `json:"relevance"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || body.TopRelevance != 100 || body.Results[0].Record.ID != "2" || body.Results[1].Relevance != 50 {
		t.Errorf("body = %+v", body)
	}

	if rec := get(t, srv, "/api/v1/search"); rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d", rec.Code)
	}
	if rec := get(t, newTestServer(t, &fakeCatalog{err: errFeedDown}, nil), "/api/v1/search?query=x"); rec.Code != http.StatusBadGateway {
		t.Errorf("feed error status = %d", rec.Code)
	}
}

func TestAPIDocument(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{records: []catalog.Record{{ID: "5", Title: "Five"}}}, nil)

	rec := get(t, srv, "/api/v1/documents/5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["title"] != "Five" || body["path"] != "/pdf/5-five" {
		t.Errorf("body = %v", body)
	}

	rec = get(t, srv, "/api/v1/documents/6")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rec.Code)
	}
}

func TestCacheInvalidate(t *testing.T) {
	post := func(cat *fakeCatalog) int {
		rec := httptest.NewRecorder()
		newTestServer(t, cat, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
		return rec.Code
	}
	if code := post(&fakeCatalog{}); code != http.StatusServiceUnavailable {
		t.Errorf("disabled = %d", code)
	}
	if code := post(&fakeCatalog{cached: true}); code != http.StatusOK {
		t.Errorf("enabled = %d", code)
	}
	if code := post(&fakeCatalog{cached: true, invalidateErr: errors.New("redis down")}); code != http.StatusInternalServerError {
		t.Errorf("failing = %d", code)
	}

	rec := httptest.NewRecorder()
	newTestServer(t, &fakeCatalog{cached: true, invalidateErr: errors.New("redis down")}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if strings.Contains(rec.Body.String(), "redis down") {
		t.Errorf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestParseDocumentSlug(t *testing.T) {
	tests := []struct {
		path     string
		id, slug string
		ok       bool
	}{
		{"/pdf/123-data-science", "123", "data-science", true},
		{"/pdf/nested/9-x", "9", "x", true},
		{"/pdf/123", "", "", false},
		{"/pdf/abc-def", "", "", false},
		{"/pdf/", "", "", false},
	}
	for _, tt := range tests {
		id, slug, ok := parseDocumentSlug(tt.path)
		if id != tt.id || slug != tt.slug || ok != tt.ok {
			t.Errorf("parseDocumentSlug(%q) = %q, %q, %v", tt.path, id, slug, ok)
		}
	}
}

func TestParsePage(t *testing.T) {
	tests := map[string]int{"": 1, "abc": 1, "0": 1, "-3": 1, "1": 1, "7": 7}
	for in, want := range tests {
		if got := parsePage(in); got != want {
			t.Errorf("parsePage(%q) = %d, want %d", in, got, want)
		}
	}
}
