package regime

import (
	"math"

	"PerpPilot/internal/indicator"
	"PerpPilot/internal/model"
)

// Classification is a regime label with a confidence in [0, 1].
type Classification struct {
	Regime     model.Regime
	Confidence float64
}

// Classify labels the current market state from a medium and a slower
// candle series. Pure function: no side effects, no I/O. Either series
// being empty or too short yields neutral with zero confidence.
func Classify(medium, slow model.CandleSeries) Classification {
	ms := indicator.TrendSlope(medium)
	ss := indicator.TrendSlope(slow)

	if ms == 0 && ss == 0 {
		return Classification{Regime: model.RegimeNeutral, Confidence: 0}
	}

	// Agreement between timeframes drives the label; magnitude drives
	// confidence, saturating around 0.5%/bar.
	strength := math.Min((math.Abs(ms)+math.Abs(ss))/1.0, 1)

	switch {
	case ms > 0 && ss > 0:
		return Classification{Regime: model.RegimeBull, Confidence: strength}
	case ms < 0 && ss < 0:
		return Classification{Regime: model.RegimeBear, Confidence: strength}
	default:
		// Timeframes disagree: neutral, confidence reflects how lopsided
		// the disagreement is.
		return Classification{Regime: model.RegimeNeutral, Confidence: strength / 2}
	}
}
