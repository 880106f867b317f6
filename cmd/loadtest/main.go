// Command loadtest replays a mix of page and API traffic against a running
// docshelf instance and prints per-route latency percentiles.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/search"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Queries     []string
}

type routeStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

type Stats struct {
	mu     sync.Mutex
	routes map[string]*routeStats
}

func NewStats() *Stats {
	return &Stats{routes: make(map[string]*routeStats)}
}

func (s *Stats) route(name string) *routeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.routes[name]
	if !ok {
		rs = &routeStats{codes: make(map[int]int64)}
		s.routes[name] = rs
	}
	return rs
}

func (s *Stats) RecordRequest(route string, took time.Duration, statusCode int, err error) {
	rs := s.route(route)
	rs.requests.Add(1)
	if err != nil || statusCode >= 500 {
		rs.errors.Add(1)
	}
	if err != nil {
		return
	}
	rs.mu.Lock()
	rs.latencies = append(rs.latencies, took)
	rs.codes[statusCode]++
	rs.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the docshelf site")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit; 0 means unlimited")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Queries: []string{
			"English Grammar",
			"data science",
			"ielts practice test",
			"history",
			"vocabulary",
			"reading comprehension",
			"science fair projects",
			"zzzz no match",
		},
	}

	fmt.Println("=== docshelf Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.RPS > 0 {
		fmt.Printf("Rate:        %.0f req/s\n", cfg.RPS)
	}
	fmt.Println()

	stats, err := runLoadTest(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	printReport(stats, cfg.Duration)
}

type worker struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	stats   *Stats
	rng     *rand.Rand
	// paths of documents seen in API results, reused for detail page hits
	docs []string
}

func runLoadTest(cfg Config) (*Stats, error) {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	limiter := rate.NewLimiter(limit, cfg.Concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		wk := &worker{
			cfg:     cfg,
			client:  client,
			limiter: limiter,
			stats:   stats,
			rng:     rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano()))),
		}
		g.Go(func() error { return wk.run(gctx) })
	}

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	err := g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats, err
}

func (w *worker) run(ctx context.Context) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}
		query := w.cfg.Queries[w.rng.IntN(len(w.cfg.Queries))]
		slug := search.QueryFromInput(query)

		switch n := w.rng.IntN(10); {
		case n < 4:
			w.hit(ctx, "search_page", fmt.Sprintf("/search?query=%s&page=%d", url.QueryEscape(slug), 1+w.rng.IntN(2)))
		case n < 6:
			w.apiSearch(ctx, slug)
		case n < 8 && len(w.docs) > 0:
			w.hit(ctx, "document", w.docs[w.rng.IntN(len(w.docs))])
		case n < 9:
			w.hit(ctx, "redirect", "/search?q="+url.QueryEscape(query))
		default:
			w.hit(ctx, "index", "/")
		}
	}
}

func (w *worker) hit(ctx context.Context, route, path string) {
	start := time.Now()
	resp, err := w.client.Do(mustNewRequest(ctx, w.cfg.BaseURL+path))
	took := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			w.stats.RecordRequest(route, took, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	w.stats.RecordRequest(route, took, resp.StatusCode, nil)
}

func (w *worker) apiSearch(ctx context.Context, slug string) {
	start := time.Now()
	resp, err := w.client.Do(mustNewRequest(ctx, w.cfg.BaseURL+"/api/v1/search?query="+url.QueryEscape(slug)))
	took := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			w.stats.RecordRequest("api_search", took, 0, err)
		}
		return
	}
	defer resp.Body.Close()
	w.stats.RecordRequest("api_search", took, resp.StatusCode, nil)

	var body struct {
		Results []struct {
			Record catalog.Record `json:"record"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return
	}
	for _, r := range body.Results {
		if len(w.docs) >= 200 {
			break
		}
		w.docs = append(w.docs, r.Record.Path())
	}
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	stats.mu.Lock()
	names := make([]string, 0, len(stats.routes))
	for name := range stats.routes {
		names = append(names, name)
	}
	stats.mu.Unlock()
	slices.Sort(names)

	var total, errs int64
	for _, name := range names {
		rs := stats.route(name)
		total += rs.requests.Load()
		errs += rs.errors.Load()
	}

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", errs)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	for _, name := range names {
		rs := stats.route(name)
		rs.mu.Lock()
		latencies := slices.Clone(rs.latencies)
		codes := make([]int, 0, len(rs.codes))
		for code := range rs.codes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		counts := make([]string, 0, len(codes))
		for _, code := range codes {
			counts = append(counts, fmt.Sprintf("%d=%d", code, rs.codes[code]))
		}
		rs.mu.Unlock()

		fmt.Println()
		fmt.Printf("=== %s (%d requests, %d errors) ===\n", name, rs.requests.Load(), rs.errors.Load())
		if len(latencies) == 0 {
			continue
		}
		slices.Sort(latencies)
		fmt.Printf("P50: %s  P95: %s  P99: %s  Max: %s\n",
			percentile(latencies, 50), percentile(latencies, 95),
			percentile(latencies, 99), latencies[len(latencies)-1])
		fmt.Printf("Status: %s\n", strings.Join(counts, " "))
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the site running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
