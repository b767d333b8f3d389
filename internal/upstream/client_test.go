package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:        baseURL,
		APIToken:       "test-token",
		Timeout:        2 * time.Second,
		RatePerSecond:  1000,
		RateBurst:      1000,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, zap.NewNop())
}

func TestFetchReport_Success(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"totals":{"sessions":1234,"users":567}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	report, err := c.FetchReport(context.Background(), "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})
	if err != nil {
		t.Fatalf("FetchReport() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/v1/properties/prop-1/report" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "end=2026-08-07&start=2026-08-01" {
		t.Errorf("query = %q", gotQuery)
	}
	if report.Totals["sessions"] != 1234 {
		t.Errorf("Totals[sessions] = %v, want 1234", report.Totals["sessions"])
	}
	if report.PropertyID != "prop-1" {
		t.Errorf("PropertyID = %q", report.PropertyID)
	}
}

func TestFetchReport_AuthErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})

	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if ue.Category != domain.CategoryAuth {
		t.Errorf("Category = %v, want auth", ue.Category)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1 (no retry on auth failure)", n)
	}
}

func TestFetchReport_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"totals":{"sessions":1}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	report, err := c.FetchReport(context.Background(), "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})
	if err != nil {
		t.Fatalf("FetchReport() error = %v, want success after retries", err)
	}
	if report.Totals["sessions"] != 1 {
		t.Errorf("Totals[sessions] = %v", report.Totals["sessions"])
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestFetchReport_QuotaErrorRetriedToExhaustion(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})

	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if ue.Category != domain.CategoryQuota {
		t.Errorf("Category = %v, want quota", ue.Category)
	}
	// Initial attempt plus MaxRetries.
	if n := requests.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestFetchReport_DecodeErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"totals":`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})

	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if ue.Category != domain.CategoryDecode {
		t.Errorf("Category = %v, want decode", ue.Category)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestFetchReport_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(&Config{
		BaseURL:        srv.URL,
		APIToken:       "t",
		RatePerSecond:  1000,
		RateBurst:      1000,
		MaxRetries:     10,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchReport(ctx, "prop-1", domain.DateRange{Start: "2026-08-01", End: "2026-08-07"})
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retries ran %v past context deadline", elapsed)
	}
}

func TestListProperties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/properties" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"properties":[
			{"id":"p1","name":"Alpha","priority":2,"tags":["retail"],"active":true},
			{"id":"p2","name":"Beta","priority":0,"active":false}
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	props, err := c.ListProperties(context.Background())
	if err != nil {
		t.Fatalf("ListProperties() error = %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d properties, want 2", len(props))
	}
	if props[0].ID != "p1" || props[0].Priority != domain.PriorityHigh || !props[0].Active {
		t.Errorf("props[0] = %+v", props[0])
	}
	if props[1].Priority != domain.PriorityLow || props[1].Active {
		t.Errorf("props[1] = %+v", props[1])
	}
}
