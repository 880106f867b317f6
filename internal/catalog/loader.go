package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -source=loader.go -destination=mocks/mock_fetcher.go -package=mocks Fetcher

// maxBodyBytes caps a single feed or list download.
const maxBodyBytes = 32 << 20

// Fetcher downloads the body at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ErrBodyTooLarge is returned when a download exceeds the fetcher's size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPFetcher fetches over plain HTTP GET.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher returns a fetcher whose client gives up after timeout. A zero
// timeout means no client-side limit.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBodyBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("reading %s: %w (limit %d bytes)", url, ErrBodyTooLarge, f.maxBytes)
	}
	return body, nil
}

// Loader builds the record set from the feed list.
type Loader struct {
	fetcher      Fetcher
	listURL      string
	domainsURL   string
	batchTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewLoader(fetcher Fetcher, cfg config.FeedsConfig, m *metrics.Metrics) *Loader {
	return &Loader{
		fetcher:      fetcher,
		listURL:      cfg.ListURL,
		domainsURL:   cfg.DomainsURL,
		batchTimeout: cfg.BatchTimeout,
		metrics:      m,
		logger:       slog.Default().With("component", "catalog-loader"),
	}
}

// Load fetches the feed list and then every feed on it concurrently. The batch
// is all-or-nothing: one failed fetch or parse fails the whole load.
func (l *Loader) Load(ctx context.Context) ([]Record, error) {
	start := time.Now()
	var loaded []Record
	err := resilience.WithTimeout(ctx, l.batchTimeout, "catalog load", func(ctx context.Context) error {
		records, err := l.load(ctx)
		if err != nil {
			return err
		}
		loaded = records
		return nil
	})
	took := time.Since(start)
	if err != nil {
		l.metrics.ObserveFeedLoad(err, took, 0)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFeedUnavailable, err)
	}
	l.metrics.ObserveFeedLoad(nil, took, len(loaded))
	l.logger.Info("catalog loaded", "documents", len(loaded), "took_ms", took.Milliseconds())
	return loaded, nil
}

func (l *Loader) load(ctx context.Context) ([]Record, error) {
	list, err := l.fetcher.Fetch(ctx, l.listURL)
	if err != nil {
		return nil, fmt.Errorf("fetching feed list: %w", err)
	}
	urls := ParseLines(string(list))

	perFeed := make([][]Record, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			body, err := l.fetcher.Fetch(gctx, url)
			if err != nil {
				return fmt.Errorf("fetching feed %s: %w", url, err)
			}
			records, err := ParseCSV(bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("parsing feed %s: %w", url, err)
			}
			perFeed[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, records := range perFeed {
		total += len(records)
	}
	all := make([]Record, 0, total)
	for _, records := range perFeed {
		all = append(all, records...)
	}
	l.logger.Debug("feeds fetched", "feeds", len(urls), "documents", total)
	return all, nil
}

// Domains fetches the mirror domain list. An unset domains URL yields none.
func (l *Loader) Domains(ctx context.Context) ([]string, error) {
	if l.domainsURL == "" {
		return nil, nil
	}
	body, err := l.fetcher.Fetch(ctx, l.domainsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching domain list: %w", apperrors.ErrFeedUnavailable, err)
	}
	return ParseLines(string(body)), nil
}

// Key identifies the feed list this loader reads; cached snapshots are keyed
// on it.
func (l *Loader) Key() string {
	return l.listURL
}
