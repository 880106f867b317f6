package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

const topListSize = 10

// AggregatedStats is a point-in-time view of everything aggregated so far.
type AggregatedStats struct {
	TotalSearches     int64           `json:"total_searches"`
	ZeroResultCount   int64           `json:"zero_result_count"`
	CacheHits         int64           `json:"cache_hits"`
	CacheMisses       int64           `json:"cache_misses"`
	AvgLatencyMs      float64         `json:"avg_latency_ms"`
	P50LatencyMs      int64           `json:"p50_latency_ms"`
	P95LatencyMs      int64           `json:"p95_latency_ms"`
	P99LatencyMs      int64           `json:"p99_latency_ms"`
	TopQueries        []QueryCount    `json:"top_queries"`
	ZeroResultQueries []QueryCount    `json:"zero_result_queries"`
	QueriesPerMinute  float64         `json:"queries_per_minute"`
	TotalViews        int64           `json:"total_views"`
	NotFoundViews     int64           `json:"not_found_views"`
	TopDocuments      []DocumentCount `json:"top_documents"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type DocumentCount struct {
	DocumentID string `json:"document_id"`
	Count      int64  `json:"count"`
}

// Aggregator folds events into counters. All methods are safe for
// concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	zeroResults       int64
	cacheHits         int64
	cacheMisses       int64
	totalViews        int64
	notFoundViews     int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	documentViews     map[string]int64
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		documentViews:     make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes a raw topic message and records it. Undecodable
// messages are logged and acknowledged so they do not block the partition.
func (a *Aggregator) HandleEvent() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if err := a.Ingest(value); err != nil {
			a.logger.Warn("skipping analytics message", "key", string(key), "error", err)
		}
		return nil
	}
}

type eventProbe struct {
	Type EventType `json:"type"`
}

// Ingest decodes one JSON event and records it.
func (a *Aggregator) Ingest(value []byte) error {
	probe, err := kafka.DecodeJSON[eventProbe](value)
	if err != nil {
		return err
	}
	switch probe.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(event)
	case EventView:
		event, err := kafka.DecodeJSON[ViewEvent](value)
		if err != nil {
			return err
		}
		a.RecordView(event)
	default:
		return fmt.Errorf("unknown event type %q", probe.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) RecordView(event ViewEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalViews++
	if !event.Found {
		a.notFoundViews++
		return
	}
	a.documentViews[event.DocumentID]++
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Only totals and the top lists carry over; latency samples do not.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches += s.TotalSearches
	a.zeroResults += s.ZeroResultCount
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.totalViews += s.TotalViews
	a.notFoundViews += s.NotFoundViews
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	for _, d := range s.TopDocuments {
		a.documentViews[d.DocumentID] += d.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		ZeroResultCount: a.zeroResults,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		TotalViews:      a.totalViews,
		NotFoundViews:   a.notFoundViews,
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topQueries(a.queryCounts, topListSize)
	stats.ZeroResultQueries = topQueries(a.zeroResultQueries, topListSize)
	stats.TopDocuments = topDocuments(a.documentViews, topListSize)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then key ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, QueryCount{Query: key, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func topQueries(counts map[string]int64, n int) []QueryCount {
	return topN(counts, n)
}

func topDocuments(counts map[string]int64, n int) []DocumentCount {
	top := topN(counts, n)
	out := make([]DocumentCount, len(top))
	for i, q := range top {
		out[i] = DocumentCount{DocumentID: q.Query, Count: q.Count}
	}
	return out
}
