package agent

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/indicators"
	"TradeMate/internal/services/policy"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
)

type fixedPredictor struct {
	action int
	calls  int
}

func (p *fixedPredictor) PredictAction(state []float64) int {
	p.calls++
	return p.action
}

type panickingPredictor struct{}

func (panickingPredictor) PredictAction(state []float64) int {
	panic("weights corrupted")
}

type recordingObserver struct {
	decisions map[string]int
	fallbacks int
	reasons   []string
	analyses  int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{decisions: map[string]int{}}
}

func (o *recordingObserver) ObserveDecision(path, signal string) {
	o.decisions[path+"/"+signal]++
}

func (o *recordingObserver) ObserveFallback(reason string) {
	o.fallbacks++
	o.reasons = append(o.reasons, reason)
}

func (o *recordingObserver) ObserveAnalysis(symbol string, elapsed time.Duration) {
	o.analyses++
}

func patternWith(rsi, macd float64) *analysis.PatternAnalysis {
	set := indicators.DefaultIndicatorSet()
	set.RSI = rsi
	set.MACD.Value = macd
	return &analysis.PatternAnalysis{Indicators: set, Patterns: analysis.PatternBundle{Trend: analysis.TrendNeutral}}
}

func newTestAgent(predictor ActionPredictor, opts ...Option) *Agent {
	analyzer := analysis.NewAnalyzer(indicators.NewCalculator(zerolog.Nop()), zerolog.Nop())
	return New(analyzer, predictor, zerolog.Nop(), opts...)
}

func TestEncodeStateDefaults(t *testing.T) {
	state := EncodeState(nil, nil)

	expected := StateVector{0.5, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if state != expected {
		t.Errorf("Expected %v, got %v", expected, state)
	}

	state = EncodeState(patternWith(indicators.NeutralRSI, 0), &sentiment.Result{Label: sentiment.Neutral})
	if state != expected {
		t.Errorf("Expected %v for default indicators, got %v", expected, state)
	}
}

func TestEncodeStateNormalization(t *testing.T) {
	pattern := &analysis.PatternAnalysis{
		Volume:    2e6,
		Change24h: -4,
		Indicators: indicators.IndicatorSet{
			RSI:  25,
			MACD: indicators.MACDValue{Value: 1.5},
		},
		Patterns:     analysis.PatternBundle{Trend: analysis.TrendDown},
		Volatility:   0.02,
		VolumeChange: 50,
	}
	sent := &sentiment.Result{Label: sentiment.Negative, Confidence: 0.7, Sources: []string{"a", "b", "c"}}

	state := EncodeState(pattern, sent)
	expected := StateVector{0.25, 1.5, 2, -0.04, -1, -1, 0.7, 0.02, 0.5, 0.3}
	for i := range expected {
		if math.Abs(state[i]-expected[i]) > 1e-12 {
			t.Errorf("Expected slot %d to be %f, got %f", i, expected[i], state[i])
		}
	}
}

func TestEncodeStateReplacesNonFinite(t *testing.T) {
	pattern := patternWith(math.NaN(), math.Inf(1))
	pattern.Volatility = math.NaN()

	state := EncodeState(pattern, &sentiment.Result{Confidence: math.NaN()})
	if state[0] != 0.5 || state[1] != 0 || state[6] != 0 || state[7] != 0 {
		t.Errorf("Expected neutral values for non-finite inputs, got %v", state)
	}
}

func TestTraditionalRecommendation(t *testing.T) {
	cases := []struct {
		name     string
		label    sentiment.Label
		conf     float64
		rsi      float64
		macd     float64
		expected analysis.TradingSignal
	}{
		{"positive oversold", sentiment.Positive, 0.8, 25, 0, analysis.SignalBuy},
		{"positive macd", sentiment.Positive, 0.8, 50, 0.3, analysis.SignalBuy},
		{"positive flat", sentiment.Positive, 0.8, 50, 0, analysis.SignalHold},
		{"negative overbought", sentiment.Negative, 0.8, 75, 0, analysis.SignalSell},
		{"negative macd", sentiment.Negative, 0.8, 50, -0.3, analysis.SignalSell},
		{"neutral", sentiment.Neutral, 0.9, 50, 0, analysis.SignalHold},
		{"confidence at threshold", sentiment.Positive, 0.75, 25, 1, analysis.SignalHold},
	}

	for _, tc := range cases {
		got := TraditionalRecommendation(patternWith(tc.rsi, tc.macd), &sentiment.Result{Label: tc.label, Confidence: tc.conf})
		if got != tc.expected {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}

	if got := TraditionalRecommendation(nil, nil); got != analysis.SignalHold {
		t.Errorf("Expected HOLD without inputs, got %s", got)
	}
}

func TestArbiterUsesPolicyAction(t *testing.T) {
	predictor := &fixedPredictor{action: policy.ActionSell}
	decision, _ := NewArbiter(predictor, zerolog.Nop()).Decide(patternWith(25, 0), &sentiment.Result{Label: sentiment.Positive, Confidence: 0.9})

	rl, ok := decision.(RLDecision)
	if !ok {
		t.Fatalf("Expected RLDecision, got %T", decision)
	}
	if rl.Action != policy.ActionSell || decision.Signal() != analysis.SignalSell {
		t.Errorf("Expected SELL from the policy, got %s", decision.Signal())
	}
	if predictor.calls != 1 {
		t.Errorf("Expected 1 policy call, got %d", predictor.calls)
	}
}

func TestArbiterFallsBack(t *testing.T) {
	sent := &sentiment.Result{Label: sentiment.Positive, Confidence: 0.8}
	pattern := patternWith(25, 0)

	cases := map[string]struct {
		predictor ActionPredictor
		reason    FallbackReason
	}{
		"out of range": {&fixedPredictor{action: 7}, FallbackOutOfRange},
		"negative":     {&fixedPredictor{action: -1}, FallbackOutOfRange},
		"panic":        {panickingPredictor{}, FallbackPanic},
		"nil":          {nil, FallbackNoPolicy},
	}
	for name, tc := range cases {
		decision, _ := NewArbiter(tc.predictor, zerolog.Nop()).Decide(pattern, sent)
		rule, ok := decision.(RuleDecision)
		if !ok {
			t.Errorf("%s: expected RuleDecision, got %T", name, decision)
			continue
		}
		if rule.Signal() != analysis.SignalBuy || rule.Path() != PathRule {
			t.Errorf("%s: expected rule BUY, got %s via %s", name, rule.Signal(), rule.Path())
		}
		if rule.Reason != tc.reason {
			t.Errorf("%s: expected reason %s, got %s", name, tc.reason, rule.Reason)
		}
	}
}

func TestActionSignalMapping(t *testing.T) {
	for action, expected := range map[int]analysis.TradingSignal{0: analysis.SignalBuy, 1: analysis.SignalSell, 2: analysis.SignalHold} {
		signal, ok := ActionToSignal(action)
		if !ok || signal != expected {
			t.Errorf("Expected %s for action %d, got %s", expected, action, signal)
		}
		if SignalToAction(signal) != action {
			t.Errorf("Expected action %d for %s", action, signal)
		}
	}
	if _, ok := ActionToSignal(3); ok {
		t.Error("Expected action 3 to be invalid")
	}
}

func TestReward(t *testing.T) {
	if r := Reward(policy.ActionBuy, 0.02); r != 0.02 {
		t.Errorf("Expected 0.02 for BUY, got %f", r)
	}
	if r := Reward(policy.ActionSell, 0.02); r != -0.02 {
		t.Errorf("Expected -0.02 for SELL, got %f", r)
	}
	if r := Reward(policy.ActionHold, -0.02); math.Abs(r+0.002) > 1e-12 {
		t.Errorf("Expected -0.002 for HOLD, got %f", r)
	}
	if r := Reward(policy.ActionBuy, math.NaN()); r != 0 {
		t.Errorf("Expected 0 for NaN return, got %f", r)
	}
}

func TestAnalyzeEndToEnd(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Seed = 7
	dqn := policy.New(cfg, zerolog.Nop())

	fixed := time.Date(2024, 11, 17, 12, 0, 0, 0, time.UTC)
	observer := newRecordingObserver()
	a := newTestAgent(dqn, WithObserver(observer), WithClock(func() time.Time { return fixed }))

	trade, err := a.Analyze("BTCUSDT", &analysis.MarketObservation{
		Symbol:    "BTCUSDT",
		Price:     100,
		Volume:    1e6,
		Change24h: 5,
	}, nil, &sentiment.Result{Label: sentiment.Positive, Confidence: 0.9, Sources: []string{"src"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !trade.Recommendation.Valid() {
		t.Errorf("Expected a valid recommendation, got %q", trade.Recommendation)
	}
	if trade.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9, got %f", trade.Confidence)
	}
	if trade.Symbol != "BTCUSDT" || !trade.Timestamp.Equal(fixed) {
		t.Errorf("Unexpected symbol/timestamp: %s %s", trade.Symbol, trade.Timestamp)
	}
	if len(trade.Indicators) == 0 {
		t.Error("Expected indicator strings")
	}
	if trade.Path != PathRL {
		t.Errorf("Expected the policy path, got %s", trade.Path)
	}

	expected := StateVector{0.5, 0, 1, 0.05, 0, 1, 0.9, 0, 0, 0.1}
	for i := range expected {
		if math.Abs(trade.State[i]-expected[i]) > 1e-12 {
			t.Errorf("Expected state slot %d to be %f, got %f", i, expected[i], trade.State[i])
		}
	}

	if observer.analyses != 1 || observer.decisions["rl/"+string(trade.Recommendation)] != 1 {
		t.Errorf("Expected one observed rl decision, got %v", observer.decisions)
	}
}

func TestAnalyzeWithoutSentiment(t *testing.T) {
	a := newTestAgent(&fixedPredictor{action: policy.ActionHold})

	trade, err := a.Analyze("ETHUSDT", &analysis.MarketObservation{Symbol: "ETHUSDT", Price: 10}, nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if trade.Recommendation != analysis.SignalHold || trade.Confidence != 0 {
		t.Errorf("Expected HOLD with zero confidence, got %s/%f", trade.Recommendation, trade.Confidence)
	}
}

func TestAnalyzeWithoutObservation(t *testing.T) {
	a := newTestAgent(&fixedPredictor{action: policy.ActionBuy})

	trade, err := a.Analyze("BTCUSDT", nil, nil, nil)
	if !errors.Is(err, ErrNoAnalysis) {
		t.Fatalf("Expected ErrNoAnalysis, got %v", err)
	}
	if trade != nil {
		t.Errorf("Expected no partial result, got %+v", trade)
	}
}

type fakeMarket struct {
	obs        *analysis.MarketObservation
	history    *analysis.PriceHistory
	obsErr     error
	historyErr error
}

func (m *fakeMarket) GetMarketObservation(ctx context.Context, symbol string) (*analysis.MarketObservation, error) {
	return m.obs, m.obsErr
}

func (m *fakeMarket) GetPriceHistory(ctx context.Context, symbol string) (*analysis.PriceHistory, error) {
	return m.history, m.historyErr
}

type fakeSentiment struct {
	results []sentiment.Result
	err     error
}

func (s *fakeSentiment) Analyze(ctx context.Context, symbol string) ([]sentiment.Result, error) {
	return s.results, s.err
}

func TestAnalyzeMarket(t *testing.T) {
	closes := make([]float64, 30)
	volumes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
		volumes[i] = 1000
	}
	volumes[29] = 1500

	market := &fakeMarket{
		obs:     &analysis.MarketObservation{Symbol: "BTCUSDT", Price: 130, Volume: 2e6, Change24h: 3},
		history: &analysis.PriceHistory{Closes: closes, Volumes: volumes},
	}
	sent := &fakeSentiment{results: []sentiment.Result{
		{Label: sentiment.Positive, Confidence: 0.9, Sources: []string{"news"}},
		{Label: sentiment.Neutral, Confidence: 0.7, Sources: []string{"reddit"}},
	}}

	observer := newRecordingObserver()
	a := newTestAgent(&fixedPredictor{action: 42}, WithMarketData(market), WithSentiment(sent), WithObserver(observer))

	report, err := a.AnalyzeMarket(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if report.Sentiment.Label != sentiment.Positive || math.Abs(report.Sentiment.Confidence-0.8) > 1e-9 {
		t.Errorf("Expected aggregated positive/0.8, got %+v", report.Sentiment)
	}
	if report.Pattern.Indicators.RSI != 100 {
		t.Errorf("Expected RSI 100 for rising prices, got %f", report.Pattern.Indicators.RSI)
	}
	if math.Abs(report.Pattern.VolumeChange-50) > 1e-9 {
		t.Errorf("Expected volume change 50, got %f", report.Pattern.VolumeChange)
	}
	// out of range action forces the rules: positive sentiment with MACD above zero
	if report.Trade.Path != PathRule || report.Trade.Recommendation != analysis.SignalBuy {
		t.Errorf("Expected rule BUY, got %s via %s", report.Trade.Recommendation, report.Trade.Path)
	}

	signal, err := a.GenerateTradeSignal(context.Background(), "BTCUSDT")
	if err != nil || signal.Recommendation != analysis.SignalBuy {
		t.Errorf("Expected BUY trade signal, got %+v (%v)", signal, err)
	}

	if observer.fallbacks != 2 || observer.reasons[0] != string(FallbackOutOfRange) {
		t.Errorf("Expected 2 out_of_range fallbacks, got %v", observer.reasons)
	}
}

func TestAnalyzeMarketUsesStoredHistory(t *testing.T) {
	closes := make([]float64, 30)
	volumes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)
		volumes[i] = 1000
	}

	market := &fakeMarket{
		obs:        &analysis.MarketObservation{Symbol: "BTCUSDT", Price: 170, Volume: 1e6},
		historyErr: errors.New("klines unavailable"),
	}
	stored := &fakeMarket{history: &analysis.PriceHistory{Closes: closes, Volumes: volumes}}

	a := newTestAgent(&fixedPredictor{action: policy.ActionHold}, WithMarketData(market), WithHistoryFallback(stored))
	report, err := a.AnalyzeMarket(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Pattern.Indicators.RSI != 0 {
		t.Errorf("Expected RSI 0 from the stored falling series, got %f", report.Pattern.Indicators.RSI)
	}
	if report.Trade.Indicators[0] != "RSI: 0.00" {
		t.Errorf("Expected RSI 0 to be reported, got %v", report.Trade.Indicators)
	}

	// both sources failing leaves the observation alone
	a = newTestAgent(&fixedPredictor{action: policy.ActionHold},
		WithMarketData(market),
		WithHistoryFallback(&fakeMarket{historyErr: errors.New("no rows")}))
	report, err = a.AnalyzeMarket(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Pattern.Indicators.RSI != indicators.NeutralRSI {
		t.Errorf("Expected neutral RSI without history, got %f", report.Pattern.Indicators.RSI)
	}
}

func TestAnalyzeMarketDegradesGracefully(t *testing.T) {
	market := &fakeMarket{
		obs:        &analysis.MarketObservation{Symbol: "BTCUSDT", Price: 100},
		historyErr: errors.New("klines unavailable"),
	}
	a := newTestAgent(&fixedPredictor{action: policy.ActionHold},
		WithMarketData(market),
		WithSentiment(&fakeSentiment{err: errors.New("classifier down")}))

	report, err := a.AnalyzeMarket(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Sentiment.Label != sentiment.Neutral || report.Trade.Recommendation != analysis.SignalHold {
		t.Errorf("Expected neutral sentiment and HOLD, got %+v", report.Trade)
	}
}

func TestAnalyzeMarketErrors(t *testing.T) {
	if _, err := newTestAgent(nil).AnalyzeMarket(context.Background(), "BTCUSDT"); !errors.Is(err, ErrNoMarketData) {
		t.Errorf("Expected ErrNoMarketData, got %v", err)
	}

	a := newTestAgent(nil, WithMarketData(&fakeMarket{obsErr: errors.New("ticker unavailable")}))
	if _, err := a.AnalyzeMarket(context.Background(), "BTCUSDT"); !errors.Is(err, ErrNoAnalysis) {
		t.Errorf("Expected ErrNoAnalysis, got %v", err)
	}
}

func TestActiveIndicators(t *testing.T) {
	if got := ActiveIndicators(nil); len(got) != 1 || got[0] != "No significant indicators" {
		t.Errorf("Expected fallback string, got %v", got)
	}

	pattern := patternWith(25, 0.5)
	pattern.Patterns = analysis.PatternBundle{
		Patterns: []analysis.Pattern{analysis.PatternOversold},
		Trend:    analysis.TrendUp,
	}
	got := ActiveIndicators(pattern)
	expected := []string{"RSI: 25.00", "MACD: 0.5000", "Pattern: oversold", "Trend: up"}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %q at %d, got %q", expected[i], i, got[i])
		}
	}
}

func TestActiveIndicatorsReportsZeroRSI(t *testing.T) {
	got := ActiveIndicators(patternWith(0, 0))
	if len(got) != 1 || got[0] != "RSI: 0.00" {
		t.Errorf("Expected [RSI: 0.00], got %v", got)
	}
}
