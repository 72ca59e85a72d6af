package marketdata

import (
	"context"
	"errors"

	"PerpPilot/internal/model"
)

// ErrRateLimited signals that a provider rejected the request because its
// rate limit was exceeded. The aggregator handles it differently from other
// failures: the local window is force-reset and the same provider retried
// once before falling through to the next one.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// errWindowFull signals that the local request window for a provider is
// already at capacity. Unlike ErrRateLimited it earns no forced reset and
// no retry: the aggregator falls through to the next ranked provider and
// the window drains on its own.
var errWindowFull = errors.New("local request window full")

// Provider fetches OHLCV candles from one data source. Implementations
// return an error for any failure; the never-fails contract (empty series
// instead of an error) lives in the Aggregator, not here.
type Provider interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.CandleSeries, error)
}
