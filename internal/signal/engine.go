package signal

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"PerpPilot/internal/config"
	"PerpPilot/internal/indicator"
	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

// CandleSource supplies auxiliary timeframes during evaluation. Satisfied
// by marketdata.Aggregator.
type CandleSource interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) model.CandleSeries
}

// Context carries the per-cycle inputs the engine does not compute itself.
type Context struct {
	Regime           model.Regime
	RegimeConfidence float64
	Leverage         int
}

// Engine evaluates technical conditions across the scenario rule-sets and
// produces a directional decision or a structured rejection.
type Engine struct {
	source       CandleSource
	cfg          config.SignalConfig
	fastInterval string
	slowInterval string
	candleLimit  int
}

// NewEngine creates a signal engine. fastInterval and slowInterval are the
// auxiliary timeframes blended into the outlook score around the primary
// series the supervisor hands in.
func NewEngine(source CandleSource, cfg config.SignalConfig, fastInterval, slowInterval string, candleLimit int) *Engine {
	return &Engine{
		source:       source,
		cfg:          cfg,
		fastInterval: fastInterval,
		slowInterval: slowInterval,
		candleLimit:  candleLimit,
	}
}

// Evaluate produces a SignalDecision for the symbol. The decision policy,
// in priority order: aligned-with-outlook, overextended reversal (guarded
// against extreme opposing trends), counter-trend under matching bias.
// When nothing passes, the rejection carries every failed predicate from
// every scenario so operators can tune thresholds from one report.
func (e *Engine) Evaluate(ctx context.Context, symbol string, primary model.CandleSeries, sctx Context) model.SignalDecision {
	decision := model.SignalDecision{Symbol: symbol, Direction: model.DirectionNone}

	snap, err := indicator.Compute(primary)
	if err != nil {
		decision.RejectionReasons = []string{fmt.Sprintf("insufficient data: %v", err)}
		return decision
	}

	// Cheap early exit: a neutral regime with no trend strength cannot
	// pass any scenario, so skip the rule evaluation entirely.
	if sctx.Regime == model.RegimeNeutral && snap.ADX < e.cfg.ADXFloor {
		decision.Scores = scores(snap, 0)
		decision.RejectionReasons = []string{fmt.Sprintf(
			"neutral regime with adx=%.1f below floor %.1f", snap.ADX, e.cfg.ADXFloor)}
		return decision
	}

	fast := e.source.Fetch(ctx, symbol, e.fastInterval, e.candleLimit)
	slow := e.source.Fetch(ctx, symbol, e.slowInterval, e.candleLimit)
	outlook := indicator.OutlookScore(fast, primary, slow)
	decision.Scores = scores(snap, outlook)

	atrLimit := e.cfg.ATRMaxPct
	if sctx.Leverage >= 20 {
		// High leverage tolerates half the volatility.
		atrLimit /= 2
	}

	scenarios := buildScenarios(snap, outlook, e.cfg, atrLimit)
	for _, sc := range scenarios {
		if !sc.passes() {
			continue
		}
		decision.Direction = sc.direction
		decision.Scenario = sc.name
		decision.Confidence = confidence(outlook, snap.ADX)
		decision.StopLossDistance = snap.ATR * e.cfg.ATRStopMultiple
		decision.TakeProfitDistance = snap.ATR * e.cfg.ATRProfitMultiple
		if decision.StopLossDistance > 0 {
			decision.RiskReward = decision.TakeProfitDistance / decision.StopLossDistance
		}
		logger.Info("signal accepted",
			zap.String("symbol", symbol),
			zap.String("scenario", sc.name),
			zap.String("direction", string(sc.direction)),
			zap.Float64("confidence", decision.Confidence),
			zap.Float64("outlook", outlook))
		return decision
	}

	// Deliberately collect failures from every scenario, not just the
	// first: operators need the full picture to tune thresholds.
	for _, sc := range scenarios {
		decision.RejectionReasons = append(decision.RejectionReasons, sc.failures()...)
	}
	return decision
}

func confidence(outlook, adx float64) float64 {
	c := 0.5 + 0.3*math.Abs(outlook) + 0.2*math.Min(adx/50, 1)
	if c > 1 {
		c = 1
	}
	return c
}

func scores(s *indicator.Snapshot, outlook float64) model.ScoreComponents {
	return model.ScoreComponents{
		RSI:          s.RSI,
		RSISlope:     s.RSISlope,
		MACDHist:     s.MACDHist,
		MACDHistPrev: s.MACDHistPrev,
		EMASlope:     s.EMASlope,
		ADX:          s.ADX,
		ADXSlope:     s.ADXSlope,
		ATRPct:       s.ATRPct,
		VolumeRatio:  s.VolumeRatio,
		Divergence:   s.Divergence,
		Outlook:      outlook,
	}
}
