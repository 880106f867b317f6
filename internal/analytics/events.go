package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventView   EventType = "view"
)

// SearchEvent describes one executed search, HTML or API.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Words        []string  `json:"words"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	Page         int       `json:"page"`
	TotalPages   int       `json:"total_pages"`
	TopRelevance int       `json:"top_relevance"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// ViewEvent describes one document detail request. Found is false for
// well-formed slugs that matched no record.
type ViewEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	Slug       string    `json:"slug"`
	Found      bool      `json:"found"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// Event is anything the collector can publish.
type Event interface {
	EventKey() string
}

// EventKey partitions searches by query so one query's events stay ordered.
func (e SearchEvent) EventKey() string { return "search:" + e.Query }

func (e ViewEvent) EventKey() string { return "view:" + e.DocumentID }
