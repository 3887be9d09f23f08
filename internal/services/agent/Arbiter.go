package agent

import (
	"fmt"
	"math"

	"TradeMate/internal/logging"
	"TradeMate/internal/services/analysis"
	"TradeMate/internal/services/indicators"
	"TradeMate/internal/services/policy"
	"TradeMate/internal/services/sentiment"

	"github.com/rs/zerolog"
)

const fallbackConfidence = 0.75

type DecisionPath string

const (
	PathRL   DecisionPath = "rl"
	PathRule DecisionPath = "rule"
)

// Decision is either an RLDecision or a RuleDecision
type Decision interface {
	Signal() analysis.TradingSignal
	Path() DecisionPath
	isDecision()
}

type RLDecision struct {
	Action int
}

func (d RLDecision) Signal() analysis.TradingSignal {
	signal, _ := ActionToSignal(d.Action)
	return signal
}

func (RLDecision) Path() DecisionPath { return PathRL }
func (RLDecision) isDecision()        {}

// FallbackReason says why the policy was bypassed
type FallbackReason string

const (
	FallbackNoPolicy   FallbackReason = "no_policy"
	FallbackPanic      FallbackReason = "panic"
	FallbackOutOfRange FallbackReason = "out_of_range"
)

// RuleDecision is the deterministic fallback, with the reason the policy was bypassed
type RuleDecision struct {
	Recommendation analysis.TradingSignal
	Reason         FallbackReason
}

func (d RuleDecision) Signal() analysis.TradingSignal { return d.Recommendation }
func (RuleDecision) Path() DecisionPath               { return PathRule }
func (RuleDecision) isDecision()                      {}

// ActionPredictor maps a state to a discrete action
type ActionPredictor interface {
	PredictAction(state []float64) int
}

// ActionToSignal maps 0, 1, 2 onto BUY, SELL, HOLD
func ActionToSignal(action int) (analysis.TradingSignal, bool) {
	switch action {
	case policy.ActionBuy:
		return analysis.SignalBuy, true
	case policy.ActionSell:
		return analysis.SignalSell, true
	case policy.ActionHold:
		return analysis.SignalHold, true
	}
	return "", false
}

func SignalToAction(signal analysis.TradingSignal) int {
	switch signal {
	case analysis.SignalBuy:
		return policy.ActionBuy
	case analysis.SignalSell:
		return policy.ActionSell
	}
	return policy.ActionHold
}

// Reward scores an action by the return realized after it was taken.
// Holding is penalized by a tenth of the move it sat out.
func Reward(action int, realizedReturn float64) float64 {
	if !finite(realizedReturn) {
		return 0
	}
	switch action {
	case policy.ActionBuy:
		return realizedReturn
	case policy.ActionSell:
		return -realizedReturn
	}
	return -math.Abs(realizedReturn) * 0.1
}

type Arbiter struct {
	predictor ActionPredictor
	logger    zerolog.Logger
}

func NewArbiter(predictor ActionPredictor, logger zerolog.Logger) *Arbiter {
	return &Arbiter{
		predictor: predictor,
		logger:    logging.Component(logger, "arbiter"),
	}
}

// Decide asks the policy first and falls back to the rules when it has no
// usable answer. It always returns a decision.
func (a *Arbiter) Decide(pa *analysis.PatternAnalysis, sent *sentiment.Result) (Decision, StateVector) {
	state := EncodeState(pa, sent)

	action, reason, err := a.predict(state)
	if err == nil {
		if _, ok := ActionToSignal(action); ok {
			return RLDecision{Action: action}, state
		}
		reason, err = FallbackOutOfRange, fmt.Errorf("action %d out of range", action)
	}

	a.logger.Warn().Err(err).Str("reason", string(reason)).Msg("policy unavailable, using rule-based recommendation")
	return RuleDecision{
		Recommendation: TraditionalRecommendation(pa, sent),
		Reason:         reason,
	}, state
}

func (a *Arbiter) predict(state StateVector) (action int, reason FallbackReason, err error) {
	if a.predictor == nil {
		return 0, FallbackNoPolicy, fmt.Errorf("no policy configured")
	}

	defer func() {
		if r := recover(); r != nil {
			reason, err = FallbackPanic, fmt.Errorf("policy panicked: %v", r)
		}
	}()
	return a.predictor.PredictAction(state.Slice()), "", nil
}

// TraditionalRecommendation is the rule-based fallback. Only confident
// sentiment can move it off HOLD, and only when the indicators agree.
func TraditionalRecommendation(pa *analysis.PatternAnalysis, sent *sentiment.Result) analysis.TradingSignal {
	if sent == nil {
		return analysis.SignalHold
	}

	rsi := float64(indicators.NeutralRSI)
	var macd float64
	if pa != nil {
		rsi = pa.Indicators.RSI
		macd = pa.Indicators.MACD.Value
	}

	label := sentiment.ParseLabel(string(sent.Label))
	if sent.Confidence > fallbackConfidence {
		switch label {
		case sentiment.Positive:
			if rsi < indicators.OversoldLevel || macd > 0 {
				return analysis.SignalBuy
			}
		case sentiment.Negative:
			if rsi > indicators.OverboughtLevel || macd < 0 {
				return analysis.SignalSell
			}
		}
	}
	return analysis.SignalHold
}
