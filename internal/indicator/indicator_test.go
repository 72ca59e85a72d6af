package indicator

import (
	"testing"
	"time"

	"PerpPilot/internal/model"
)

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

func trendCloses(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return closes
}

func TestCompute_RejectsShortSeries(t *testing.T) {
	series := seriesFrom(trendCloses(MinBars-1, 100, 1))
	if _, err := Compute(series); err == nil {
		t.Fatalf("expected error below %d bars", MinBars)
	}
	if _, err := Compute(model.EmptySeries("BTC", "1h")); err == nil {
		t.Fatal("expected error for the empty sentinel")
	}
}

func TestCompute_Uptrend(t *testing.T) {
	series := seriesFrom(trendCloses(60, 100, 1))
	snap, err := Compute(series)
	if err != nil {
		t.Fatal(err)
	}

	if snap.Price != series.LastClose() {
		t.Errorf("price must be the last close, got %.2f", snap.Price)
	}
	if snap.RSI <= 50 {
		t.Errorf("expected RSI above 50 in a pure uptrend, got %.1f", snap.RSI)
	}
	if snap.EMASlope <= 0 {
		t.Errorf("expected positive EMA slope, got %.4f", snap.EMASlope)
	}
	if snap.ATR <= 0 || snap.ATRPct <= 0 {
		t.Errorf("expected positive ATR, got %.4f (%.4f%%)", snap.ATR, snap.ATRPct)
	}
}

func TestCompute_DowntrendFlipsSigns(t *testing.T) {
	snap, err := Compute(seriesFrom(trendCloses(60, 300, -1)))
	if err != nil {
		t.Fatal(err)
	}
	if snap.RSI >= 50 {
		t.Errorf("expected RSI below 50 in a pure downtrend, got %.1f", snap.RSI)
	}
	if snap.EMASlope >= 0 {
		t.Errorf("expected negative EMA slope, got %.4f", snap.EMASlope)
	}
}

func TestTrendSlope(t *testing.T) {
	if s := TrendSlope(seriesFrom(trendCloses(60, 100, 1))); s <= 0 {
		t.Errorf("uptrend slope should be positive, got %.4f", s)
	}
	if s := TrendSlope(seriesFrom(trendCloses(60, 300, -1))); s >= 0 {
		t.Errorf("downtrend slope should be negative, got %.4f", s)
	}
	if s := TrendSlope(seriesFrom(trendCloses(10, 100, 1))); s != 0 {
		t.Errorf("short series must yield zero slope, got %.4f", s)
	}
	if s := TrendSlope(model.EmptySeries("BTC", "1h")); s != 0 {
		t.Errorf("empty sentinel must yield zero slope, got %.4f", s)
	}
}

func TestOutlookScore(t *testing.T) {
	up := seriesFrom(trendCloses(60, 100, 1))
	down := seriesFrom(trendCloses(60, 300, -1))
	empty := model.EmptySeries("BTC", "1h")

	if score := OutlookScore(up, up, up); score <= 0 {
		t.Errorf("all-up outlook should be positive, got %.3f", score)
	}
	if score := OutlookScore(down, down, down); score >= 0 {
		t.Errorf("all-down outlook should be negative, got %.3f", score)
	}
	if score := OutlookScore(empty, empty, empty); score != 0 {
		t.Errorf("no data means no bias, got %.3f", score)
	}

	// Slower timeframes dominate the blend.
	mixed := OutlookScore(down, up, up)
	if mixed <= 0 {
		t.Errorf("fast-timeframe dissent must not flip a slow uptrend, got %.3f", mixed)
	}

	for _, score := range []float64{
		OutlookScore(up, up, up),
		OutlookScore(down, down, down),
	} {
		if score < -1 || score > 1 {
			t.Errorf("outlook must stay in [-1, 1], got %.3f", score)
		}
	}
}
