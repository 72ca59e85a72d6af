package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"PerpPilot/internal/model"
)

// BinanceProvider is the primary candle source: the exchange-native
// perpetual-futures kline feed. Market data endpoints need no credentials.
type BinanceProvider struct {
	client *futures.Client
}

// NewBinanceProvider creates the provider with a public (unauthenticated) client.
func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{client: futures.NewClient("", "")}
}

func (p *BinanceProvider) Name() string { return "binance-futures" }

// binanceSymbol maps an engine symbol to the USDT-margined contract name.
func binanceSymbol(symbol string) string {
	return symbol + "USDT"
}

// FetchCandles fetches klines for the symbol/interval.
func (p *BinanceProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(binanceSymbol(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && (apiErr.Code == -1003 || apiErr.Code == -1015) {
			return model.CandleSeries{}, fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return model.CandleSeries{}, fmt.Errorf("binance klines: %w", err)
	}

	series := model.CandleSeries{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   make([]model.Candle, 0, len(klines)),
		FetchedAt: time.Now(),
	}
	for _, k := range klines {
		c := model.Candle{Time: time.Unix(k.OpenTime/1000, 0)}
		if c.Open, err = parseFloat(k.Open); err != nil {
			return model.CandleSeries{}, fmt.Errorf("binance kline open: %w", err)
		}
		if c.High, err = parseFloat(k.High); err != nil {
			return model.CandleSeries{}, fmt.Errorf("binance kline high: %w", err)
		}
		if c.Low, err = parseFloat(k.Low); err != nil {
			return model.CandleSeries{}, fmt.Errorf("binance kline low: %w", err)
		}
		if c.Close, err = parseFloat(k.Close); err != nil {
			return model.CandleSeries{}, fmt.Errorf("binance kline close: %w", err)
		}
		if c.Volume, err = parseFloat(k.Volume); err != nil {
			return model.CandleSeries{}, fmt.Errorf("binance kline volume: %w", err)
		}
		series.Candles = append(series.Candles, c)
	}
	return series, nil
}
