package model

import "time"

// Candle represents a single OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleSeries holds a chronologically ordered candle sequence for one
// symbol/interval. A series is never mutated after it is built; callers
// that need a subset copy the slice.
type CandleSeries struct {
	Symbol    string
	Interval  string
	Candles   []Candle
	FetchedAt time.Time
}

// EmptySeries returns the explicit empty sentinel for a symbol/interval.
// Data providers return it instead of an error when no data is available.
func EmptySeries(symbol, interval string) CandleSeries {
	return CandleSeries{Symbol: symbol, Interval: interval, FetchedAt: time.Now()}
}

// Empty reports whether the series carries no candles.
func (s CandleSeries) Empty() bool { return len(s.Candles) == 0 }

// Len returns the number of candles.
func (s CandleSeries) Len() int { return len(s.Candles) }

// Closes returns the close prices as a flat slice.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices as a flat slice.
func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices as a flat slice.
func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the volumes as a flat slice.
func (s CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// LastClose returns the most recent close price, or 0 for an empty series.
func (s CandleSeries) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}
