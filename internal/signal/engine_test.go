package signal

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"PerpPilot/internal/config"
	"PerpPilot/internal/indicator"
	"PerpPilot/internal/model"
)

type staticSource struct {
	series map[string]model.CandleSeries
}

func (s *staticSource) Fetch(_ context.Context, symbol, interval string, _ int) model.CandleSeries {
	if series, ok := s.series[interval]; ok {
		return series
	}
	return model.EmptySeries(symbol, interval)
}

func testConfig() config.SignalConfig {
	return config.SignalConfig{
		OutlookLongThreshold:  0.3,
		OutlookShortThreshold: -0.3,
		OutlookExtreme:        0.7,
		RSIOversold:           30,
		RSIOverbought:         70,
		ADXFloor:              15,
		ADXTrending:           22,
		ATRMaxPct:             5,
		VolumeRatioMin:        0.8,
		DivergenceMin:         0.2,
		ATRStopMultiple:       1.0,
		ATRProfitMultiple:     2.0,
	}
}

func seriesFrom(closes []float64) model.CandleSeries {
	s := model.CandleSeries{Symbol: "BTC", Interval: "1h", FetchedAt: time.Now()}
	for i, c := range closes {
		s.Candles = append(s.Candles, model.Candle{
			Time: time.Now().Add(time.Duration(i) * time.Hour),
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100,
		})
	}
	return s
}

// choppy builds a sideways series: alternating up/down bars with no net
// direction, which keeps ADX low and the outlook near zero.
func choppy(n int) model.CandleSeries {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	return seriesFrom(closes)
}

func newTestEngine(src CandleSource) *Engine {
	return NewEngine(src, testConfig(), "15m", "4h", 100)
}

func TestEvaluate_InsufficientData(t *testing.T) {
	e := newTestEngine(&staticSource{})
	d := e.Evaluate(context.Background(), "BTC", model.EmptySeries("BTC", "1h"), Context{})

	if d.Direction != model.DirectionNone {
		t.Fatalf("expected no direction, got %s", d.Direction)
	}
	if len(d.RejectionReasons) != 1 || !strings.Contains(d.RejectionReasons[0], "insufficient data") {
		t.Errorf("expected an insufficient-data rejection, got %v", d.RejectionReasons)
	}
}

func TestEvaluate_NeutralRegimeLowADXEarlyExit(t *testing.T) {
	src := &staticSource{series: map[string]model.CandleSeries{
		"15m": choppy(60), "4h": choppy(60),
	}}
	e := newTestEngine(src)

	d := e.Evaluate(context.Background(), "BTC", choppy(60), Context{Regime: model.RegimeNeutral})

	if d.Direction != model.DirectionNone {
		t.Fatalf("expected no direction, got %s", d.Direction)
	}
	if len(d.RejectionReasons) != 1 || !strings.Contains(d.RejectionReasons[0], "neutral regime") {
		t.Errorf("expected the single early-exit reason, got %v", d.RejectionReasons)
	}
}

func TestEvaluate_RejectionAggregatesAllScenarios(t *testing.T) {
	src := &staticSource{series: map[string]model.CandleSeries{
		"15m": choppy(60), "4h": choppy(60),
	}}
	e := newTestEngine(src)

	// Bull regime skips the early exit; the choppy series then fails rules
	// across the board.
	d := e.Evaluate(context.Background(), "BTC", choppy(60), Context{Regime: model.RegimeBull})

	if d.Direction != model.DirectionNone {
		t.Fatalf("expected rejection, got %s via %s", d.Direction, d.Scenario)
	}
	joined := strings.Join(d.RejectionReasons, "\n")
	// Failures from opposing scenarios must both be present: the report
	// covers every rule-set, not just the first.
	if !strings.Contains(joined, "aligned-long") {
		t.Error("missing aligned-long failures in rejection report")
	}
	if !strings.Contains(joined, "aligned-short") {
		t.Error("missing aligned-short failures in rejection report")
	}
	if len(d.RejectionReasons) < 4 {
		t.Errorf("expected failures from several scenarios, got %d", len(d.RejectionReasons))
	}
}

func TestBuildScenarios_AlignedLongPasses(t *testing.T) {
	snap := &indicator.Snapshot{
		Price: 100, RSI: 55, MACDHist: 1.2, MACDHistPrev: 1.0,
		EMASlope: 0.2, ADX: 30, ATR: 2, ATRPct: 2, VolumeRatio: 1.2,
	}
	scenarios := buildScenarios(snap, 0.5, testConfig(), 5)

	var passed []string
	for _, sc := range scenarios {
		if sc.passes() {
			passed = append(passed, sc.name)
		}
	}
	if len(passed) != 1 || passed[0] != "aligned-long" {
		t.Errorf("expected only aligned-long to pass, got %v", passed)
	}
}

func TestBuildScenarios_ReversalOutranksCounterTrend(t *testing.T) {
	// Oversold bounce with bullish divergence: both the reversal-long and
	// counter-trend-long rule-sets are satisfied. Table order decides.
	snap := &indicator.Snapshot{
		Price: 100, RSI: 28, RSISlope: 0.5, Divergence: 0.3,
		MACDHist: -0.5, MACDHistPrev: -0.8, EMASlope: -0.1,
		ADX: 18, ATR: 2, ATRPct: 2, VolumeRatio: 1.0,
	}
	scenarios := buildScenarios(snap, 0.1, testConfig(), 5)

	var passed []string
	for _, sc := range scenarios {
		if sc.passes() {
			passed = append(passed, sc.name)
		}
	}
	if len(passed) != 2 {
		t.Fatalf("expected both long scenarios to pass, got %v", passed)
	}
	if passed[0] != "overextended-reversal-long" {
		t.Errorf("reversal must outrank counter-trend in table order, got %v", passed)
	}
}

func TestBuildScenarios_ExtremeOpposingTrendBlocksReversal(t *testing.T) {
	snap := &indicator.Snapshot{
		Price: 100, RSI: 25, RSISlope: 0.5, Divergence: 0.4,
		ADX: 30, ATR: 2, ATRPct: 2, VolumeRatio: 1.0,
	}
	// A strongly bearish outlook vetoes the long reversal.
	scenarios := buildScenarios(snap, -0.8, testConfig(), 5)

	for _, sc := range scenarios {
		if sc.name == "overextended-reversal-long" && sc.passes() {
			t.Error("reversal-long must be blocked against an extreme opposing trend")
		}
	}
}

func TestBuildScenarios_FailureFormatNamesScenario(t *testing.T) {
	snap := &indicator.Snapshot{Price: 100, RSI: 50, ATRPct: 2, VolumeRatio: 1.0}
	scenarios := buildScenarios(snap, 0, testConfig(), 5)

	for _, sc := range scenarios {
		for _, f := range sc.failures() {
			if !strings.HasPrefix(f, sc.name+": ") {
				t.Fatalf("failure %q must be prefixed with scenario name %q", f, sc.name)
			}
			if !strings.Contains(f, "expected") {
				t.Fatalf("failure %q must state the expected condition", f)
			}
		}
	}
}

func TestConfidence_Bounds(t *testing.T) {
	if c := confidence(0, 0); c != 0.5 {
		t.Errorf("baseline confidence should be 0.5, got %.2f", c)
	}
	if c := confidence(0.5, 25); math.Abs(c-0.75) > 1e-9 {
		t.Errorf("expected 0.75, got %.2f", c)
	}
	if c := confidence(1, 100); c != 1 {
		t.Errorf("confidence must cap at 1, got %.2f", c)
	}
}
