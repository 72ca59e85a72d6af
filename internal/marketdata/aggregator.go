package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PerpPilot/internal/config"
	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

type rankedProvider struct {
	provider Provider
	limiter  *windowLimiter
}

// Aggregator fetches candle series from an ordered list of providers with
// per-provider rate limiting and TTL caching. Fetch never returns an error:
// when every provider is exhausted it returns the explicit empty series
// sentinel, and callers treat an empty or short series as "insufficient
// data, skip this symbol this cycle".
type Aggregator struct {
	providers []rankedProvider
	cache     *candleCache

	mu       sync.Mutex
	failures map[string]int
}

// NewAggregator builds an aggregator over providers, in priority order.
func NewAggregator(cfg config.RateLimitConfig, ttl time.Duration, providers ...Provider) *Aggregator {
	ranked := make([]rankedProvider, len(providers))
	for i, p := range providers {
		ranked[i] = rankedProvider{
			provider: p,
			limiter: newWindowLimiter(
				time.Duration(cfg.WindowSeconds)*time.Second,
				cfg.MaxRequests,
				time.Duration(cfg.MinDelayMillis)*time.Millisecond,
			),
		}
	}
	return &Aggregator{
		providers: ranked,
		cache:     newCandleCache(ttl),
		failures:  make(map[string]int),
	}
}

// Fetch returns a candle series for symbol/interval, trying providers in
// rank order. Results are cached by (symbol, interval, limit).
func (a *Aggregator) Fetch(ctx context.Context, symbol, interval string, limit int) model.CandleSeries {
	if series, ok := a.cache.Get(symbol, interval, limit); ok {
		return series
	}

	for _, rp := range a.providers {
		series, err := a.fetchFrom(ctx, rp, symbol, interval, limit)
		if err != nil {
			a.recordFailure(rp.provider.Name())
			logger.Warn("provider failed, trying next",
				zap.String("provider", rp.provider.Name()),
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Error(err))
			continue
		}
		if series.Empty() {
			a.recordFailure(rp.provider.Name())
			continue
		}
		a.cache.Put(symbol, interval, limit, series)
		return series
	}

	logger.Warn("all providers exhausted, degrading to empty series",
		zap.String("symbol", symbol), zap.String("interval", interval))
	return model.EmptySeries(symbol, interval)
}

// fetchFrom runs one rate-limited provider call. Only a rate limit the
// provider itself reports gets the limiter window force-reset and a single
// same-provider retry; a full local window propagates untouched so the
// caller fails over while the window drains.
func (a *Aggregator) fetchFrom(ctx context.Context, rp rankedProvider, symbol, interval string, limit int) (model.CandleSeries, error) {
	series, err := a.limitedCall(ctx, rp, symbol, interval, limit)
	if errors.Is(err, ErrRateLimited) {
		rp.limiter.Reset()
		logger.Debug("rate limited, window reset for one retry",
			zap.String("provider", rp.provider.Name()))
		series, err = a.limitedCall(ctx, rp, symbol, interval, limit)
	}
	return series, err
}

func (a *Aggregator) limitedCall(ctx context.Context, rp rankedProvider, symbol, interval string, limit int) (model.CandleSeries, error) {
	delay, ok := rp.limiter.Acquire(time.Now())
	if !ok {
		return model.CandleSeries{}, errWindowFull
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.CandleSeries{}, ctx.Err()
		}
	}
	return rp.provider.FetchCandles(ctx, symbol, interval, limit)
}

// MultiTimeframe fans out Fetch calls for every interval concurrently and
// joins them into a keyed bundle. A failed interval yields the empty
// sentinel instead of failing the whole bundle.
func (a *Aggregator) MultiTimeframe(ctx context.Context, symbol string, intervals []string, limit int) map[string]model.CandleSeries {
	out := make(map[string]model.CandleSeries, len(intervals))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, interval := range intervals {
		interval := interval
		g.Go(func() error {
			series := a.Fetch(gctx, symbol, interval, limit)
			mu.Lock()
			out[interval] = series
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // workers never return errors; Fetch degrades internally

	return out
}

// ProviderFailures reports how many calls to the named provider have
// failed since startup. Surfaced through status queries for diagnosis.
func (a *Aggregator) ProviderFailures(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[name]
}

// CachedSeries reports the number of live cache entries.
func (a *Aggregator) CachedSeries() int { return a.cache.Len() }

// SweepCache drops expired cache entries; wired to the maintenance job.
func (a *Aggregator) SweepCache() { a.cache.Sweep() }

func (a *Aggregator) recordFailure(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[name]++
}
