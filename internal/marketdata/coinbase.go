package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"PerpPilot/internal/model"
)

// CoinbaseSpotProvider is the tertiary candle source: a spot-exchange feed.
// Spot prices track the perp closely enough for indicator evaluation when
// both futures feeds are unavailable.
type CoinbaseSpotProvider struct {
	baseURL string
	client  *http.Client
}

// NewCoinbaseSpotProvider creates the provider. baseURL is overridable for tests.
func NewCoinbaseSpotProvider(baseURL string) *CoinbaseSpotProvider {
	if baseURL == "" {
		baseURL = "https://api.exchange.coinbase.com"
	}
	return &CoinbaseSpotProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *CoinbaseSpotProvider) Name() string { return "coinbase-spot" }

var coinbaseGranularity = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "1h": 3600, "6h": 21600, "1d": 86400,
}

// FetchCandles fetches spot candles for the symbol/interval.
func (p *CoinbaseSpotProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	gran, ok := coinbaseGranularity[interval]
	if !ok {
		return model.CandleSeries{}, fmt.Errorf("coinbase: unsupported interval %q", interval)
	}

	endpoint := fmt.Sprintf("%s/products/%s-USD/candles?granularity=%d", p.baseURL, symbol, gran)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.CandleSeries{}, err
	}
	req.Header.Set("User-Agent", "perppilot/1.0")
	resp, err := p.client.Do(req)
	if err != nil {
		return model.CandleSeries{}, fmt.Errorf("coinbase fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return model.CandleSeries{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.CandleSeries{}, fmt.Errorf("coinbase: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Rows are [time, low, high, open, close, volume], newest first.
	var rows [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return model.CandleSeries{}, fmt.Errorf("coinbase decode: %w", err)
	}

	series := model.CandleSeries{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   make([]model.Candle, 0, len(rows)),
		FetchedAt: time.Now(),
	}
	for _, row := range rows {
		if len(row) < 6 {
			return model.CandleSeries{}, fmt.Errorf("coinbase: malformed candle row with %d fields", len(row))
		}
		series.Candles = append(series.Candles, model.Candle{
			Time:   time.Unix(int64(row[0]), 0),
			Low:    row[1],
			High:   row[2],
			Open:   row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	sort.Slice(series.Candles, func(i, j int) bool {
		return series.Candles[i].Time.Before(series.Candles[j].Time)
	})
	if len(series.Candles) > limit {
		series.Candles = series.Candles[len(series.Candles)-limit:]
	}
	return series, nil
}
