package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
)

type fakeSource struct {
	records []Record
	domains []string
	err     error
	calls   atomic.Int64
	gate    chan struct{}
}

func (s *fakeSource) Load(ctx context.Context) ([]Record, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.records, s.err
}

// waitForCalls polls until the source has been entered n times.
func waitForCalls(t *testing.T, s *fakeSource, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("source entered %d times, want %d", s.calls.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *fakeSource) Domains(ctx context.Context) ([]string, error) {
	return s.domains, s.err
}

func (s *fakeSource) Key() string { return "https://feeds.example/csvs.txt" }

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  time.Duration
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	m.ttl = ttl
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestCatalog_RecordsCachesSnapshot(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1", Title: "Alpha"}}}
	store := newMemStore()
	c := New(src, store, time.Minute, nil)

	first, hit, err := c.Records(context.Background())
	if err != nil || hit {
		t.Fatalf("first load: hit=%v err=%v", hit, err)
	}
	second, hit, err := c.Records(context.Background())
	if err != nil || !hit {
		t.Fatalf("second load should be a cache hit: hit=%v err=%v", hit, err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected one source load, got %d", src.calls.Load())
	}
	if len(first) != 1 || len(second) != 1 || second[0].Title != "Alpha" {
		t.Errorf("unexpected records %+v / %+v", first, second)
	}
	if store.ttl != time.Minute {
		t.Errorf("snapshot stored with ttl %v", store.ttl)
	}
}

func TestCatalog_Invalidate(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1", Title: "Alpha"}}}
	c := New(src, newMemStore(), time.Minute, nil)

	c.Records(context.Background())
	deleted, err := c.Invalidate(context.Background())
	if err != nil || deleted != 1 {
		t.Fatalf("Invalidate: deleted=%d err=%v", deleted, err)
	}
	if _, hit, _ := c.Records(context.Background()); hit {
		t.Error("load after invalidation should miss")
	}
	if src.calls.Load() != 2 {
		t.Errorf("expected a refetch after invalidation, got %d loads", src.calls.Load())
	}
}

func TestCatalog_NoStore(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1"}}}
	c := New(src, nil, time.Minute, nil)

	c.Records(context.Background())
	c.Records(context.Background())
	if src.calls.Load() != 2 {
		t.Errorf("without a store every call loads, got %d", src.calls.Load())
	}
	if n, err := c.Invalidate(context.Background()); n != 0 || err != nil {
		t.Errorf("Invalidate without store: %d, %v", n, err)
	}
}

func TestCatalog_ConcurrentLoadsCollapse(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1"}}, gate: make(chan struct{})}
	c := New(src, nil, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Records(context.Background()); err != nil {
				t.Errorf("Records: %v", err)
			}
		}()
	}
	// Give the goroutines time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.calls.Load(); got >= 8 {
		t.Errorf("expected concurrent loads to share a fetch, got %d loads", got)
	}
}

func TestCatalog_LoadError(t *testing.T) {
	want := errors.New("feeds down")
	c := New(&fakeSource{err: want}, newMemStore(), time.Minute, nil)

	records, _, err := c.Records(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if records != nil {
		t.Errorf("expected nil records, got %v", records)
	}
}

func TestCatalog_Domains(t *testing.T) {
	c := New(&fakeSource{domains: []string{"https://m1.example"}}, nil, 0, nil)
	domains, err := c.Domains(context.Background())
	if err != nil || len(domains) != 1 {
		t.Errorf("Domains: %v, %v", domains, err)
	}
}

func TestCatalog_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1", Title: "Alpha"}}, gate: make(chan struct{})}
	c := New(src, nil, time.Minute, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, _, err := c.Records(ctxA)
		errA <- err
	}()
	waitForCalls(t, src, 1)

	type result struct {
		records []Record
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		records, _, err := c.Records(context.Background())
		resB <- result{records, err}
	}()
	// Let B join the in-flight load before A goes away.
	time.Sleep(20 * time.Millisecond)
	cancelA()

	err := <-errA
	if !errors.Is(err, context.Canceled) || !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("cancelled caller got %v", err)
	}

	close(src.gate)
	b := <-resB
	if b.err != nil {
		t.Fatalf("caller that never cancelled got %v", b.err)
	}
	if len(b.records) != 1 || b.records[0].Title != "Alpha" {
		t.Errorf("records = %+v", b.records)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected one shared load, got %d", got)
	}
}

func TestCatalog_SharedLoadFailureFailsEveryCaller(t *testing.T) {
	want := errors.New("feed 2 returned 500")
	src := &fakeSource{err: want, gate: make(chan struct{})}
	c := New(src, nil, time.Minute, nil)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go func() {
			records, _, err := c.Records(ctx)
			if records != nil {
				t.Errorf("failed load returned records %v", records)
			}
			errs <- err
		}()
	}
	waitForCalls(t, src, 1)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)

	for i := 0; i < 3; i++ {
		if err := <-errs; !errors.Is(err, want) {
			t.Errorf("caller %d: expected %v, got %v", i, want, err)
		}
	}
	if st := c.Status(); !errors.Is(st.Err, want) || !st.LastSuccess.IsZero() {
		t.Errorf("status after failure = %+v", st)
	}
}

func TestCatalog_DomainsSurviveCancelledCaller(t *testing.T) {
	src := &gatedDomains{domains: []string{"https://m1.example"}, gate: make(chan struct{})}
	c := New(src, nil, 0, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	go c.Domains(ctxA)
	waitForDomainCall(t, src)

	resB := make(chan error, 1)
	go func() {
		_, err := c.Domains(context.Background())
		resB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()
	close(src.gate)
	if err := <-resB; err != nil {
		t.Errorf("Domains: %v", err)
	}
}

type gatedDomains struct {
	fakeSource
	domains []string
	gate    chan struct{}
	entered atomic.Bool
}

func (s *gatedDomains) Domains(ctx context.Context) ([]string, error) {
	s.entered.Store(true)
	select {
	case <-s.gate:
		return s.domains, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitForDomainCall(t *testing.T, s *gatedDomains) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !s.entered.Load() {
		if time.Now().After(deadline) {
			t.Fatal("domain fetch never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCatalog_Status(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: "1"}, {ID: "2"}}}
	c := New(src, nil, time.Minute, nil)

	if st := c.Status(); !st.LastSuccess.IsZero() || st.Err != nil {
		t.Fatalf("initial status = %+v", st)
	}

	c.Records(context.Background())
	first := c.Status()
	if first.LastSuccess.IsZero() || first.Documents != 2 || first.Err != nil {
		t.Fatalf("status after success = %+v", first)
	}

	src.err = errors.New("down")
	c.Records(context.Background())
	failed := c.Status()
	if failed.Err == nil || failed.LastSuccess != first.LastSuccess || failed.Documents != 2 {
		t.Errorf("failure should keep the last success: %+v", failed)
	}

	src.err = nil
	c.Records(context.Background())
	if st := c.Status(); st.Err != nil {
		t.Errorf("success should clear the error: %+v", st)
	}
}
