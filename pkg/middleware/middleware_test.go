package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/tracing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected a generated request id on the context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Errorf("expected caller id to propagate, got %q", seen)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/search", "/search"},
		{"/pdf/123-some-title", "/pdf/{id}"},
		{"/api/v1/documents/42", "/api/v1/documents/{id}"},
		{"/api/v1/search", "/api/v1/search"},
		{"/wp-admin", "other"},
		{"/pdf/", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsRecordsStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pdf/1-x", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/pdf/{id}", "404"))
	if got != 1 {
		t.Errorf("expected one 404 on /pdf/{id}, got %v", got)
	}
	if v := testutil.ToFloat64(m.HTTPRequestsInFlight); v != 0 {
		t.Errorf("in-flight gauge should return to 0, got %v", v)
	}
}

func TestMetricsNilIsPassThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Metrics(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestTimeoutWritesGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	})

	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestTimeoutFastHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Timeout(time.Second)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLimiterBurstThenReject(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2}, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request inside the same instant should be rejected")
	}
	if !l.Allow("b") {
		t.Error("a different client has its own bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("one token should refill after a second")
	}
}

func TestLimiterSweep(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 5, Burst: 5}, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	if removed := l.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if _, ok := l.entries["fresh"]; !ok {
		t.Error("fresh entry should survive")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, time.Minute)
	h := RateLimit(l)(okHandler)

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do("/search"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := do("/search"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", code)
	}
	if code := do("/health/live"); code != http.StatusOK {
		t.Errorf("health should be exempt, got %d", code)
	}
}

func TestRateLimitRejectionBody(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, time.Minute)
	h := RateLimit(l)(okHandler)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search?query=x", nil)
		req.RemoteAddr = "10.0.0.2:4444"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"rate limit exceeded"}` {
		t.Errorf("body = %s", got)
	}
}

func TestWriteErrorUsesAppErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "request timeout"))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"request timeout"}` {
		t.Errorf("body = %s", got)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	if got := clientKey(req); got != "192.0.2.7" {
		t.Errorf("clientKey = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.9" {
		t.Errorf("clientKey with forwarded = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(config.CORSConfig{AllowOrigins: []string{"https://app.example"}, MaxAge: 600})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal error") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTraceRootSpan(t *testing.T) {
	var root *tracing.Span
	h := RequestID(Trace(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root = tracing.FromContext(r.Context())
		_, child := tracing.StartChildSpan(r.Context(), "work")
		child.End()
	})))

	req := httptest.NewRequest(http.MethodGet, "/pdf/12-some-title", nil)
	req.Header.Set(RequestIDHeader, "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if root == nil {
		t.Fatal("no span on request context")
	}
	if root.Name != "GET /pdf/{id}" {
		t.Errorf("span name = %q", root.Name)
	}
	if root.TraceID != "trace-me" {
		t.Errorf("trace id = %q", root.TraceID)
	}
	if got := root.Children(); len(got) != 1 || got[0].Name != "work" {
		t.Errorf("children = %v", got)
	}
}
