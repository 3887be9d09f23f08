package sentiment

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

// ParseLabel normalizes a classifier label; anything unknown is neutral
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case Positive:
		return Positive
	case Negative:
		return Negative
	}
	return Neutral
}

// Polarity maps the label onto 1, 0 or -1
func (l Label) Polarity() float64 {
	switch l {
	case Positive:
		return 1
	case Negative:
		return -1
	}
	return 0
}

// priority orders labels for aggregation: positive > neutral > negative
func (l Label) priority() int {
	switch l {
	case Positive:
		return 2
	case Neutral:
		return 1
	}
	return 0
}

// Result is one sentiment reading
type Result struct {
	Label      Label    `json:"sentiment"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// NeutralResult is used when no sentiment is available
func NeutralResult() Result {
	return Result{Label: Neutral}
}

// Analysis is an aggregated result for a symbol
type Analysis struct {
	Symbol    string    `json:"symbol"`
	Result    Result    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Source classifies sentiment for a symbol and may return several readings
type Source interface {
	Analyze(ctx context.Context, symbol string) ([]Result, error)
}

// Aggregate reduces a batch of readings to one: the highest priority label,
// the mean confidence and the sorted union of sources. An empty batch is neutral.
func Aggregate(results []Result) Result {
	if len(results) == 0 {
		return NeutralResult()
	}

	label := Negative
	var total float64
	seen := make(map[string]struct{})
	for _, r := range results {
		l := ParseLabel(string(r.Label))
		if l.priority() > label.priority() {
			label = l
		}
		total += normalizeConfidence(r.Confidence)
		for _, s := range r.Sources {
			if s != "" {
				seen[s] = struct{}{}
			}
		}
	}

	sources := make([]string, 0, len(seen))
	for s := range seen {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	return Result{
		Label:      label,
		Confidence: total / float64(len(results)),
		Sources:    sources,
	}
}

func normalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// NeutralSource is used when no classifier is configured
type NeutralSource struct{}

func (NeutralSource) Analyze(ctx context.Context, symbol string) ([]Result, error) {
	return []Result{NeutralResult()}, nil
}
