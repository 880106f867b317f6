// Package handler serves the document site: the index, search and document
// pages as HTML, and a JSON API over the same catalog.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/related"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/search"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/site/render"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/tracing"
)

const (
	msgEnterQuery      = "Please enter a search query."
	msgLoadDocuments   = "Error loading documents."
	msgLoadResults     = "Error loading search results."
	msgLoadDocument    = "Error loading document data."
	msgLoadRelated     = "Error loading related documents."
	msgMalformedSlug   = "Error: Missing document ID or title in URL."
	metaDescriptionLen = 160
)

var slugPattern = regexp.MustCompile(`^([0-9]+)-(.+)$`)

// Catalog is the record source the handlers read from.
type Catalog interface {
	Records(ctx context.Context) ([]catalog.Record, bool, error)
	Domains(ctx context.Context) ([]string, error)
	Invalidate(ctx context.Context) (int64, error)
	Cached() bool
}

// Tracker receives analytics events. *analytics.Collector satisfies it,
// including a nil one.
type Tracker interface {
	Track(event analytics.Event)
}

type Handler struct {
	catalog  Catalog
	picker   *related.Picker
	renderer *render.Renderer
	tracker  Tracker
	metrics  *metrics.Metrics
	site     config.SiteConfig
	logger   *slog.Logger
}

// New builds a Handler. tracker and m may be nil.
func New(cat Catalog, picker *related.Picker, renderer *render.Renderer, tracker Tracker, m *metrics.Metrics, site config.SiteConfig) *Handler {
	return &Handler{
		catalog:  cat,
		picker:   picker,
		renderer: renderer,
		tracker:  tracker,
		metrics:  m,
		site:     site,
		logger:   slog.Default().With("component", "site-handler"),
	}
}

// Register mounts every route on mux. The JSON API lives under /api/v1/ and
// is wrapped by wrapAPI, typically CORS.
func (h *Handler) Register(mux *http.ServeMux, wrapAPI func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /pdf/", h.Document)
	mux.Handle("GET /static/", render.Static())

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/search", h.APISearch)
	api.HandleFunc("GET /api/v1/documents/{id}", h.APIDocument)
	api.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	var apiHandler http.Handler = api
	if wrapAPI != nil {
		apiHandler = wrapAPI(api)
	}
	mux.Handle("/api/v1/", apiHandler)
}

// Index lists a random selection of documents.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	view := render.IndexView{Meta: h.meta(h.site.SiteName, "", "")}
	records, _, err := h.records(r.Context())
	if err != nil {
		view.Error = msgLoadDocuments
		h.renderHTML(w, r, apperrors.HTTPStatusCode(err), func(buf io.Writer) error {
			return h.renderer.Index(buf, view)
		})
		return
	}
	view.Items = h.plainItems(h.picker.Pick(records, "", h.site.SuggestionCount))
	h.renderHTML(w, r, http.StatusOK, func(buf io.Writer) error {
		return h.renderer.Index(buf, view)
	})
}

// Search serves GET /search?query=words-joined-by-hyphens&page=n. A free-text
// ?q= from the search box is normalised and redirected to ?query=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	if !params.Has("query") && params.Has("q") {
		http.Redirect(w, r, searchURL(search.QueryFromInput(params.Get("q")), 0), http.StatusFound)
		return
	}

	raw := params.Get("query")
	q := search.ParseQuery(raw)
	page := parsePage(params.Get("page"))
	view := render.SearchView{Meta: h.meta(h.site.SiteName, "", q.Display())}

	if q.Empty() {
		h.metrics.ObserveSearch("empty", time.Since(start), 0)
		view.Header = msgEnterQuery
		h.renderHTML(w, r, http.StatusOK, func(buf io.Writer) error {
			return h.renderer.Search(buf, view)
		})
		return
	}
	view.Meta.Title = "SCRIBD documents related to " + q.Display()

	records, cacheHit, err := h.records(ctx)
	if err != nil {
		h.metrics.ObserveSearch("error", time.Since(start), 0)
		view.Error = msgLoadResults
		h.renderHTML(w, r, apperrors.HTTPStatusCode(err), func(buf io.Writer) error {
			return h.renderer.Search(buf, view)
		})
		return
	}

	_, rank := tracing.StartChildSpan(ctx, "search.rank")
	resp := search.Search(q, records, page)
	rank.SetAttr("matches", resp.Total)
	rank.End()
	if resp.Total > 0 {
		view.Header = fmt.Sprintf("%d %s found for '%s'.", resp.Total, plural(resp.Total, "document", "documents"), q.Display())
		hl := search.NewHighlighter(q.Words)
		view.Items = make([]render.Item, 0, len(resp.Results))
		for _, res := range resp.Results {
			view.Items = append(view.Items, render.HighlightedItem(h.documentURL(res.Record), res.Record.Title, res.Record.Summary, hl))
		}
		view.Pagination = pagination(raw, resp)
	} else {
		view.Header = fmt.Sprintf("No documents found for '%s'. But, these documents might be interesting for you.", q.Display())
		view.Items = h.plainItems(h.picker.Pick(records, "", h.site.SuggestionCount))
	}

	h.recordSearch(ctx, q, resp, cacheHit, time.Since(start))
	h.renderHTML(w, r, http.StatusOK, func(buf io.Writer) error {
		return h.renderer.Search(buf, view)
	})
}

// Document serves /pdf/{id}-{slug}. Only the last path segment is read.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := render.DocumentView{Meta: h.meta(h.site.SiteName, "", "")}
	respond := func(status int) {
		h.renderHTML(w, r, status, func(buf io.Writer) error {
			return h.renderer.Document(buf, view)
		})
	}

	id, titleSlug, ok := parseDocumentSlug(r.URL.Path)
	if !ok {
		h.metrics.ObserveView("malformed")
		view.Message = msgMalformedSlug
		respond(http.StatusBadRequest)
		return
	}

	records, _, err := h.records(ctx)
	if err != nil {
		h.metrics.ObserveView("error")
		view.Message = msgLoadDocument
		respond(apperrors.HTTPStatusCode(err))
		return
	}

	if first, found := catalog.FindByID(records, id); found {
		view.Breadcrumb = first.Title
	}

	doc, found := catalog.Find(records, id, titleSlug)
	h.recordView(ctx, id, titleSlug, found)
	if !found {
		view.Message = fmt.Sprintf("Document not found for ID: %s and title: %s", id, titleSlug)
		respond(http.StatusNotFound)
		return
	}

	docID := strings.TrimSpace(doc.ID)
	view.Meta.Title = fmt.Sprintf("[PDF] %s | %s", doc.Title, h.site.SiteName)
	view.Meta.Description = truncateRunes(doc.Summary, metaDescriptionLen)
	view.Document = &render.DocumentDetail{
		ID:          docID,
		Title:       doc.Title,
		Summary:     doc.Summary,
		Pages:       doc.Pages,
		Views:       doc.Views,
		DownloadURL: fmt.Sprintf(h.site.DownloadURL, docID, titleSlug),
	}

	domains, err := h.catalog.Domains(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("related documents unavailable", "document_id", docID, "error", err)
		view.RelatedError = msgLoadRelated
	} else {
		for _, s := range h.picker.Suggest(records, domains, docID, h.site.SuggestionCount) {
			view.Related = append(view.Related, render.PlainItem(s.URL, s.Record.Title, s.Record.Summary))
		}
	}
	respond(http.StatusOK)
}

type apiSearchResponse struct {
	Query string   `json:"query"`
	Words []string `json:"words"`
	*search.Response
}

// APISearch is the JSON form of Search.
func (h *Handler) APISearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	raw := params.Get("query")
	if raw == "" && params.Has("q") {
		raw = search.QueryFromInput(params.Get("q"))
	}
	q := search.ParseQuery(raw)
	if q.Empty() {
		h.metrics.ObserveSearch("empty", time.Since(start), 0)
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'query' is required"))
		return
	}

	records, cacheHit, err := h.records(ctx)
	if err != nil {
		h.metrics.ObserveSearch("error", time.Since(start), 0)
		h.writeError(w, err)
		return
	}
	resp := search.Search(q, records, parsePage(params.Get("page")))
	h.recordSearch(ctx, q, resp, cacheHit, time.Since(start))
	h.writeJSON(w, http.StatusOK, apiSearchResponse{Query: raw, Words: q.Words, Response: resp})
}

// APIDocument returns the first record with the given ID.
func (h *Handler) APIDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, _, err := h.records(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	doc, ok := catalog.FindByID(records, id)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "no document with id %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		catalog.Record
		Path string `json:"path"`
	}{doc, doc.Path()})
}

// CacheInvalidate drops the cached catalog snapshot.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.catalog.Cached() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.catalog.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, &apperrors.AppError{
			Err:        fmt.Errorf("%w: %w", apperrors.ErrInternal, err),
			Message:    "cache invalidation failed",
			StatusCode: http.StatusInternalServerError,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) records(ctx context.Context) ([]catalog.Record, bool, error) {
	ctx, span := tracing.StartChildSpan(ctx, "catalog.records")
	defer span.End()
	records, cacheHit, err := h.catalog.Records(ctx)
	span.SetAttr("cache_hit", cacheHit)
	span.SetAttr("documents", len(records))
	return records, cacheHit, err
}

func (h *Handler) recordSearch(ctx context.Context, q search.Query, resp *search.Response, cacheHit bool, took time.Duration) {
	resultType := "match"
	if resp.Total == 0 {
		resultType = "zero_result"
	}
	h.metrics.ObserveSearch(resultType, took, resp.Total)
	logger.FromContext(ctx).Info("search completed",
		"query", q.Raw,
		"total_hits", resp.Total,
		"page", resp.Window.Page,
		"cache_hit", cacheHit,
		"latency_ms", took.Milliseconds(),
	)
	if h.tracker == nil {
		return
	}
	h.tracker.Track(analytics.SearchEvent{
		Type:         analytics.EventSearch,
		Query:        q.Slug(),
		Words:        q.Words,
		TotalHits:    resp.Total,
		Returned:     len(resp.Results),
		Page:         resp.Window.Page,
		TotalPages:   resp.Window.TotalPages,
		TopRelevance: resp.TopRelevance,
		LatencyMs:    took.Milliseconds(),
		CacheHit:     cacheHit,
		Timestamp:    time.Now().UTC(),
		RequestID:    logger.RequestID(ctx),
	})
}

func (h *Handler) recordView(ctx context.Context, id, slug string, found bool) {
	outcome := "found"
	if !found {
		outcome = "not_found"
	}
	h.metrics.ObserveView(outcome)
	if h.tracker == nil {
		return
	}
	h.tracker.Track(analytics.ViewEvent{
		Type:       analytics.EventView,
		DocumentID: id,
		Slug:       slug,
		Found:      found,
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
}

func (h *Handler) meta(title, description, searchText string) render.Meta {
	return render.Meta{
		Title:       title,
		Description: description,
		SiteName:    h.site.SiteName,
		SearchText:  searchText,
	}
}

// documentURL links a record's detail page under the configured base URL.
func (h *Handler) documentURL(r catalog.Record) string {
	return h.site.BaseURL + related.DocumentPath(r)
}

func (h *Handler) plainItems(records []catalog.Record) []render.Item {
	items := make([]render.Item, 0, len(records))
	for _, r := range records {
		items = append(items, render.PlainItem(h.documentURL(r), r.Title, r.Summary))
	}
	return items
}

// renderHTML renders into a buffer so the status can still change if the
// template fails.
func (h *Handler) renderHTML(w http.ResponseWriter, r *http.Request, status int, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		logger.FromContext(r.Context()).Error("rendering page failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("writing page failed", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if apperrors.Is(err, apperrors.ErrInternal) {
		h.logger.Error("request failed", "error", err)
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": message})
}

// parseDocumentSlug splits the last path segment into the numeric ID and the
// title slug.
func parseDocumentSlug(path string) (id, slug string, ok bool) {
	last := path[strings.LastIndex(path, "/")+1:]
	m := slugPattern.FindStringSubmatch(last)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// parsePage reads the page parameter; anything unparsable means page 1.
func parsePage(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func searchURL(query string, page int) string {
	u := "/search?query=" + url.QueryEscape(query)
	if page > 0 {
		u += "&page=" + strconv.Itoa(page)
	}
	return u
}

func pagination(raw string, resp *search.Response) *render.Pagination {
	if len(resp.Links) == 0 {
		return nil
	}
	p := &render.Pagination{Links: make([]render.PaginationLink, 0, len(resp.Links))}
	if resp.Prev > 0 {
		p.PrevURL = searchURL(raw, resp.Prev)
	}
	if resp.Next > 0 {
		p.NextURL = searchURL(raw, resp.Next)
	}
	for _, l := range resp.Links {
		link := render.PaginationLink{Number: l.Number, Ellipsis: l.Ellipsis, Active: l.Active}
		if !l.Ellipsis {
			link.URL = searchURL(raw, l.Number)
		}
		p.Links = append(p.Links, link)
	}
	return p
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
