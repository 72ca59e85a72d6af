package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"PerpPilot/internal/model"
)

// BybitIndexProvider is the secondary candle source: an index-price kline
// feed. Index candles smooth out single-venue wicks, which is acceptable
// for signal evaluation when the primary feed is down. Index klines carry
// no volume; volume-based predicates degrade gracefully on zero.
type BybitIndexProvider struct {
	baseURL string
	client  *http.Client
}

// NewBybitIndexProvider creates the provider. baseURL is overridable for tests.
func NewBybitIndexProvider(baseURL string) *BybitIndexProvider {
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &BybitIndexProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *BybitIndexProvider) Name() string { return "bybit-index" }

var bybitIntervals = map[string]string{
	"1m": "1", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "4h": "240", "1d": "D",
}

type bybitKlineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List [][]string `json:"list"`
	} `json:"result"`
}

// FetchCandles fetches index-price klines for the symbol/interval.
func (p *BybitIndexProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	iv, ok := bybitIntervals[interval]
	if !ok {
		return model.CandleSeries{}, fmt.Errorf("bybit: unsupported interval %q", interval)
	}

	endpoint := fmt.Sprintf("%s/v5/market/index-price-kline?category=linear&symbol=%sUSDT&interval=%s&limit=%d",
		p.baseURL, symbol, iv, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.CandleSeries{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.CandleSeries{}, fmt.Errorf("bybit fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return model.CandleSeries{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.CandleSeries{}, fmt.Errorf("bybit: status %d, body: %s", resp.StatusCode, string(body))
	}

	var parsed bybitKlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.CandleSeries{}, fmt.Errorf("bybit decode: %w", err)
	}
	if parsed.RetCode == 10006 {
		return model.CandleSeries{}, ErrRateLimited
	}
	if parsed.RetCode != 0 {
		return model.CandleSeries{}, fmt.Errorf("bybit api error %d: %s", parsed.RetCode, parsed.RetMsg)
	}

	series := model.CandleSeries{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   make([]model.Candle, 0, len(parsed.Result.List)),
		FetchedAt: time.Now(),
	}
	// Rows are [startTime, open, high, low, close], newest first.
	for _, row := range parsed.Result.List {
		if len(row) < 5 {
			return model.CandleSeries{}, fmt.Errorf("bybit: malformed kline row with %d fields", len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return model.CandleSeries{}, fmt.Errorf("bybit kline time: %w", err)
		}
		c := model.Candle{Time: time.Unix(ms/1000, 0)}
		if c.Open, err = parseFloat(row[1]); err != nil {
			return model.CandleSeries{}, fmt.Errorf("bybit kline open: %w", err)
		}
		if c.High, err = parseFloat(row[2]); err != nil {
			return model.CandleSeries{}, fmt.Errorf("bybit kline high: %w", err)
		}
		if c.Low, err = parseFloat(row[3]); err != nil {
			return model.CandleSeries{}, fmt.Errorf("bybit kline low: %w", err)
		}
		if c.Close, err = parseFloat(row[4]); err != nil {
			return model.CandleSeries{}, fmt.Errorf("bybit kline close: %w", err)
		}
		series.Candles = append(series.Candles, c)
	}
	sort.Slice(series.Candles, func(i, j int) bool {
		return series.Candles[i].Time.Before(series.Candles[j].Time)
	})
	return series, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
