package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLabel(t *testing.T) {
	cases := map[string]Label{
		"positive":  Positive,
		" NEGATIVE": Negative,
		"Neutral":   Neutral,
		"bullish":   Neutral,
		"":          Neutral,
	}
	for input, expected := range cases {
		if got := ParseLabel(input); got != expected {
			t.Errorf("Expected %s for %q, got %s", expected, input, got)
		}
	}
}

func TestAggregate(t *testing.T) {
	result := Aggregate([]Result{
		{Label: Negative, Confidence: 0.9, Sources: []string{"news", "reddit"}},
		{Label: Positive, Confidence: 0.5, Sources: []string{"news"}},
		{Label: Neutral, Confidence: 0.4},
	})

	if result.Label != Positive {
		t.Errorf("Expected positive label, got %s", result.Label)
	}
	if math.Abs(result.Confidence-0.6) > 1e-9 {
		t.Errorf("Expected mean confidence 0.6, got %f", result.Confidence)
	}
	if len(result.Sources) != 2 || result.Sources[0] != "news" || result.Sources[1] != "reddit" {
		t.Errorf("Expected sources [news reddit], got %v", result.Sources)
	}
}

func TestAggregatePriority(t *testing.T) {
	result := Aggregate([]Result{{Label: Negative}, {Label: Neutral}})
	if result.Label != Neutral {
		t.Errorf("Expected neutral over negative, got %s", result.Label)
	}

	result = Aggregate([]Result{{Label: Negative, Confidence: 0.8}})
	if result.Label != Negative || result.Confidence != 0.8 {
		t.Errorf("Expected negative/0.8, got %s/%f", result.Label, result.Confidence)
	}
}

func TestAggregateEmpty(t *testing.T) {
	result := Aggregate(nil)
	if result.Label != Neutral || result.Confidence != 0 || len(result.Sources) != 0 {
		t.Errorf("Expected neutral/0/no sources, got %+v", result)
	}
}

func TestHTTPSourceArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/classify" {
			t.Errorf("Expected POST /classify, got %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", auth)
		}

		body, _ := io.ReadAll(r.Body)
		var req classifyRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Symbol != "BTCUSDT" {
			t.Errorf("Expected symbol BTCUSDT in body, got %s", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"label":"Positive","score":0.92,"sources":["finbert"]},{"sentiment":"negative","confidence":0.4}]`))
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, "/classify", "secret", time.Second)
	results, err := source.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Label != Positive || results[0].Confidence != 0.92 || results[0].Sources[0] != "finbert" {
		t.Errorf("Unexpected first result: %+v", results[0])
	}
	if results[1].Label != Negative || results[1].Confidence != 0.4 {
		t.Errorf("Unexpected second result: %+v", results[1])
	}
}

func TestHTTPSourceObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"label":"neutral","score":1.7}`))
	}))
	defer server.Close()

	results, err := NewHTTPSource(server.URL, "/", "", time.Second).Analyze(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Label != Neutral || results[0].Confidence != 1 {
		t.Errorf("Expected one neutral result clamped to 1, got %+v", results)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if _, err := NewHTTPSource(server.URL, "/", "", time.Second).Analyze(context.Background(), "BTCUSDT"); err == nil {
		t.Error("Expected error for 400 response")
	}
}

type memoryCache struct {
	data   map[string][]byte
	sets   int
	getErr error
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	c.sets++
	return nil
}

type countingSource struct {
	calls   int
	results []Result
}

func (s *countingSource) Analyze(ctx context.Context, symbol string) ([]Result, error) {
	s.calls++
	return s.results, nil
}

func TestCachedSource(t *testing.T) {
	cache := &memoryCache{data: map[string][]byte{}}
	source := &countingSource{results: []Result{
		{Label: Positive, Confidence: 0.8, Sources: []string{"a"}},
		{Label: Neutral, Confidence: 0.6, Sources: []string{"b"}},
	}}
	cached := NewCachedSource(source, cache, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		results, err := cached.Analyze(context.Background(), "BTCUSDT")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(results) != 1 || results[0].Label != Positive || math.Abs(results[0].Confidence-0.7) > 1e-9 {
			t.Errorf("Expected aggregated positive/0.7, got %+v", results)
		}
	}

	if source.calls != 1 {
		t.Errorf("Expected 1 source call, got %d", source.calls)
	}
	if cache.sets != 1 {
		t.Errorf("Expected 1 cache write, got %d", cache.sets)
	}
}

func TestCachedSourceFallsThroughOnCacheError(t *testing.T) {
	cache := &memoryCache{data: map[string][]byte{}, getErr: errors.New("connection refused")}
	source := &countingSource{results: []Result{{Label: Negative, Confidence: 0.5}}}

	results, err := NewCachedSource(source, cache, 0, zerolog.Nop()).Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if source.calls != 1 || results[0].Label != Negative {
		t.Errorf("Expected result from source, got %+v", results)
	}
}
