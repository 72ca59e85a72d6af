package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"PerpPilot/internal/model"
)

const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	emaFast      = 9
	emaSlow      = 21
	adxPeriod    = 14
	atrPeriod    = 14
	volSMAPeriod = 20
	slopeBars    = 3
	divLookback  = 14
)

// MinBars is the minimum series length the indicator set needs.
// MACD(12,26,9) has the longest warm-up.
const MinBars = macdSlow + macdSignal + slopeBars

// Snapshot holds the full indicator set computed over one candle series.
type Snapshot struct {
	Price        float64
	RSI          float64
	RSISlope     float64
	MACDHist     float64
	MACDHistPrev float64
	EMAFast      float64
	EMASlow      float64
	EMASlope     float64
	ADX          float64
	ADXSlope     float64
	ATR          float64
	ATRPct       float64
	VolumeRatio  float64
	Divergence   float64
}

// Compute evaluates the indicator set over a series. It returns an error
// when the series is too short; callers treat that as "skip this cycle".
func Compute(series model.CandleSeries) (*Snapshot, error) {
	if series.Len() < MinBars {
		return nil, fmt.Errorf("insufficient data: %d bars, need %d", series.Len(), MinBars)
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()
	price := closes[len(closes)-1]

	rsi := talib.Rsi(closes, rsiPeriod)
	_, _, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	emaF := talib.Ema(closes, emaFast)
	emaS := talib.Ema(closes, emaSlow)
	adx := talib.Adx(highs, lows, closes, adxPeriod)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	snap := &Snapshot{
		Price:        price,
		RSI:          last(rsi),
		RSISlope:     slope(rsi, slopeBars),
		MACDHist:     last(hist),
		MACDHistPrev: prev(hist),
		EMAFast:      last(emaF),
		EMASlow:      last(emaS),
		ADX:          last(adx),
		ADXSlope:     slope(adx, slopeBars),
		ATR:          last(atr),
	}

	// EMA slope as percent of price per bar, so it is comparable across symbols.
	if price > 0 {
		snap.EMASlope = slope(emaF, slopeBars) / price * 100
		snap.ATRPct = snap.ATR / price * 100
	}
	snap.VolumeRatio = volumeRatio(volumes)
	snap.Divergence = divergence(closes, rsi)

	return snap, nil
}

// TrendSlope returns the slow-EMA slope of a series as percent of price per
// bar, or 0 for a series too short to evaluate. Used by the regime
// classifier and the multi-timeframe outlook score.
func TrendSlope(series model.CandleSeries) float64 {
	closes := series.Closes()
	if len(closes) < emaSlow+slopeBars {
		return 0
	}
	price := closes[len(closes)-1]
	if price <= 0 {
		return 0
	}
	ema := talib.Ema(closes, emaSlow)
	return slope(ema, slopeBars) / price * 100
}

// OutlookScore blends trend slopes across three timeframes into a single
// directional bias in roughly [-1, 1]. Slower timeframes carry more weight.
func OutlookScore(fast, medium, slow model.CandleSeries) float64 {
	score := 0.20*squash(TrendSlope(fast)) +
		0.35*squash(TrendSlope(medium)) +
		0.45*squash(TrendSlope(slow))
	return clamp(score, -1, 1)
}

// squash maps a slope (percent per bar) into [-1, 1] with saturation
// around ±0.5%/bar, which is already a strong trend on any timeframe.
func squash(slopePct float64) float64 {
	return math.Tanh(slopePct * 2)
}

// volumeRatio compares the latest volume to its 20-bar average.
func volumeRatio(volumes []float64) float64 {
	if len(volumes) < volSMAPeriod+1 {
		return 0
	}
	sma := talib.Sma(volumes, volSMAPeriod)
	avg := last(sma)
	if avg <= 0 {
		return 0
	}
	return volumes[len(volumes)-1] / avg
}

// divergence scores price/RSI disagreement over the lookback window.
// Positive values mean RSI is strengthening while price weakens (bullish
// divergence); negative the opposite. Both changes are normalized before
// differencing so the score sits in roughly [-1, 1].
func divergence(closes, rsi []float64) float64 {
	if len(closes) < divLookback+1 || len(rsi) < divLookback+1 {
		return 0
	}
	pStart := closes[len(closes)-1-divLookback]
	pEnd := closes[len(closes)-1]
	rStart := rsi[len(rsi)-1-divLookback]
	rEnd := rsi[len(rsi)-1]
	if pStart <= 0 {
		return 0
	}
	priceNorm := clamp((pEnd-pStart)/pStart*10, -1, 1)
	rsiNorm := clamp((rEnd-rStart)/50, -1, 1)
	return clamp(rsiNorm-priceNorm, -1, 1)
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

func prev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	return v[len(v)-2]
}

// slope returns the average per-bar change over the last n bars.
func slope(v []float64, n int) float64 {
	if len(v) < n+1 {
		return 0
	}
	return (v[len(v)-1] - v[len(v)-1-n]) / float64(n)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
