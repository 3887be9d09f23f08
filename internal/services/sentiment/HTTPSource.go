package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultHTTPTimeout = 10 * time.Second

// HTTPSource asks a remote classifier service for sentiment readings
type HTTPSource struct {
	client *resty.Client
	path   string
}

type classifyRequest struct {
	Symbol string `json:"symbol"`
	Text   string `json:"text"`
}

// classifyResult accepts both the label/score and the sentiment/confidence spellings
type classifyResult struct {
	Label      string   `json:"label"`
	Sentiment  string   `json:"sentiment"`
	Score      *float64 `json:"score"`
	Confidence *float64 `json:"confidence"`
	Sources    []string `json:"sources"`
}

func NewHTTPSource(baseURL, path, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(200 * time.Millisecond)
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &HTTPSource{
		client: client,
		path:   path,
	}
}

func (s *HTTPSource) Analyze(ctx context.Context, symbol string) ([]Result, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(classifyRequest{Symbol: symbol, Text: symbol}).
		Post(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sentiment for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sentiment service returned %d for %s", resp.StatusCode(), symbol)
	}

	return decodeResults(resp.Body())
}

// decodeResults parses either a single object or an array of objects
func decodeResults(body []byte) ([]Result, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var raw []classifyResult
	if body[0] == '[' {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode sentiment response: %w", err)
		}
	} else {
		var single classifyResult
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("failed to decode sentiment response: %w", err)
		}
		raw = append(raw, single)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		label := r.Label
		if label == "" {
			label = r.Sentiment
		}
		var confidence float64
		switch {
		case r.Confidence != nil:
			confidence = *r.Confidence
		case r.Score != nil:
			confidence = *r.Score
		}
		results = append(results, Result{
			Label:      ParseLabel(label),
			Confidence: normalizeConfidence(confidence),
			Sources:    r.Sources,
		})
	}
	return results, nil
}
