package venue

import (
	"context"

	"PerpPilot/internal/model"
)

// OpenResult reports the outcome of an open attempt. AvgFillPrice is the
// actual average fill price; ledger entries and PnL always use it, never
// the requested price.
type OpenResult struct {
	Success      bool
	Reference    string
	AvgFillPrice float64
	FilledSize   float64
	Error        string
}

// CloseResult reports the outcome of a close attempt.
type CloseResult struct {
	Success      bool
	Symbol       string
	FilledSize   float64
	AvgFillPrice float64
	Error        string
}

// Adapter executes opens and closes and reports positions and PnL against
// one execution venue. The two implementations (order-book and external
// contract-execution service) are interchangeable behind this interface;
// which one runs is a construction-time choice, never inferred from the
// credential's shape.
type Adapter interface {
	Name() string
	// MinCollateral is this venue's own minimum collateral per position.
	// It differs meaningfully between venues.
	MinCollateral() float64
	Healthy(ctx context.Context) error
	OpenPosition(ctx context.Context, symbol string, collateralUSD float64, leverage int, isLong bool, credential string) OpenResult
	ClosePosition(ctx context.Context, symbol, reason, credential string) CloseResult
	CloseAll(ctx context.Context, credential string) []CloseResult
	GetOpenPositions(ctx context.Context, credential string) ([]model.PositionSnapshot, error)
	GetAggregatePnL(ctx context.Context, credential string) (float64, error)
}
