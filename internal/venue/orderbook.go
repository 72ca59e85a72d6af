package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

// InstrumentMeta holds per-instrument rounding constraints.
type InstrumentMeta struct {
	MinSize      float64
	SizeDecimals int32
}

var defaultInstruments = map[string]InstrumentMeta{
	"BTC":  {MinSize: 0.0001, SizeDecimals: 5},
	"ETH":  {MinSize: 0.001, SizeDecimals: 4},
	"SOL":  {MinSize: 0.01, SizeDecimals: 2},
	"AVAX": {MinSize: 0.01, SizeDecimals: 2},
	"LINK": {MinSize: 0.1, SizeDecimals: 1},
	"DOGE": {MinSize: 1, SizeDecimals: 0},
	"XRP":  {MinSize: 1, SizeDecimals: 0},
}

// aggressionPct is how far through the book an IOC open is priced: ~2% in
// the order's favor so it crosses the spread and fills against resting
// liquidity.
const aggressionPct = 0.02

// orderBookMinCollateral is the venue's minimum collateral per position.
const orderBookMinCollateral = 10.0

// OrderBookVenue executes against a native order book: immediate-or-cancel
// limit orders priced aggressively off the current mid, one escalation at
// the exact mid, then a bounded status poll. Fill handling follows the
// order fill state machine; a poll timeout is a non-fill, never an
// indefinite wait.
type OrderBookVenue struct {
	baseURL      string
	client       *fasthttp.Client
	retry        RetryPolicy
	pollInterval time.Duration
	pollTimeout  time.Duration
	instruments  map[string]InstrumentMeta

	mu          sync.Mutex
	pnlBaseline float64
	baselineSet bool
}

// NewOrderBookVenue creates the order-book execution strategy.
func NewOrderBookVenue(baseURL string, retry RetryPolicy, pollInterval, pollTimeout time.Duration) *OrderBookVenue {
	return &OrderBookVenue{
		baseURL:      baseURL,
		client:       &fasthttp.Client{},
		retry:        retry,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		instruments:  defaultInstruments,
	}
}

func (v *OrderBookVenue) Name() string           { return "orderbook" }
func (v *OrderBookVenue) MinCollateral() float64 { return orderBookMinCollateral }

// Healthy checks the venue is reachable by requesting a book snapshot.
func (v *OrderBookVenue) Healthy(ctx context.Context) error {
	_, err := v.fetchMid(ctx, "BTC")
	return err
}

// tickSize returns the price increment for an instrument at the given
// price. Tick granularity is a step function of price magnitude: coarser
// ticks for higher-priced instruments.
func tickSize(price float64) decimal.Decimal {
	switch {
	case price >= 10000:
		return decimal.NewFromFloat(1)
	case price >= 1000:
		return decimal.NewFromFloat(0.1)
	case price >= 100:
		return decimal.NewFromFloat(0.01)
	case price >= 10:
		return decimal.NewFromFloat(0.001)
	case price >= 1:
		return decimal.NewFromFloat(0.0001)
	default:
		return decimal.NewFromFloat(0.00001)
	}
}

// roundToTick rounds a price to the instrument's tick at that magnitude.
func roundToTick(price float64) float64 {
	tick := tickSize(price)
	d := decimal.NewFromFloat(price)
	rounded, _ := d.Div(tick).Round(0).Mul(tick).Float64()
	return rounded
}

// roundSize floors a size to the instrument's size decimals.
func roundSize(size float64, meta InstrumentMeta) float64 {
	rounded, _ := decimal.NewFromFloat(size).RoundFloor(meta.SizeDecimals).Float64()
	return rounded
}

// OpenPosition submits an aggressive IOC sized from collateral x leverage
// at the current mid. Local validation (size minimums) completes before
// anything is sent to the venue.
func (v *OrderBookVenue) OpenPosition(ctx context.Context, symbol string, collateralUSD float64, leverage int, isLong bool, credential string) OpenResult {
	meta, ok := v.instruments[symbol]
	if !ok {
		return OpenResult{Error: fmt.Sprintf("unknown instrument %q", symbol)}
	}

	mid, err := v.fetchMid(ctx, symbol)
	if err != nil {
		return OpenResult{Error: fmt.Sprintf("fetch mid: %v", err)}
	}

	size := roundSize(collateralUSD*float64(leverage)/mid, meta)
	if size < meta.MinSize {
		return OpenResult{Error: fmt.Sprintf(
			"size %.8f below instrument minimum %.8f (collateral $%.2f at %dx)",
			size, meta.MinSize, collateralUSD, leverage)}
	}

	// ~2% through the book in the order's favor.
	price := mid * (1 + aggressionPct)
	if !isLong {
		price = mid * (1 - aggressionPct)
	}

	fill := model.NewOrderFillStatus(uuid.NewString(), size)
	if err := v.submitIOC(ctx, fill, symbol, roundToTick(price), size, isLong, false, credential); err != nil {
		return OpenResult{Error: err.Error()}
	}

	// A venue-side rejection is terminal for this cycle. Only an order that
	// did not fill immediately earns the single escalation at the exact
	// current mid, then a bounded poll.
	if !fill.Terminal() {
		fill = model.NewOrderFillStatus(uuid.NewString(), size)
		mid, err = v.fetchMid(ctx, symbol)
		if err != nil {
			return OpenResult{Error: fmt.Sprintf("fetch mid for escalation: %v", err)}
		}
		if err := v.submitIOC(ctx, fill, symbol, roundToTick(mid), size, isLong, false, credential); err != nil {
			return OpenResult{Error: err.Error()}
		}
		if fill.State == model.FillResting {
			v.pollUntilTerminal(ctx, fill, credential)
		}
	}

	switch fill.State {
	case model.FillFilled, model.FillPartiallyFilled:
		return OpenResult{
			Success:      true,
			Reference:    fill.OrderID,
			AvgFillPrice: fill.AvgFillPrice,
			FilledSize:   fill.FilledSize,
		}
	default:
		return OpenResult{Reference: fill.OrderID, Error: fill.ErrorMessage}
	}
}

// ClosePosition closes the tracked position with an aggressive reduce-only
// IOC. Realized values come from the actual fill, never the request.
func (v *OrderBookVenue) ClosePosition(ctx context.Context, symbol, reason, credential string) CloseResult {
	positions, err := v.GetOpenPositions(ctx, credential)
	if err != nil {
		return CloseResult{Symbol: symbol, Error: fmt.Sprintf("fetch positions: %v", err)}
	}
	var pos *model.PositionSnapshot
	for i := range positions {
		if positions[i].Symbol == symbol {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return CloseResult{Symbol: symbol, Error: "no open position on venue"}
	}

	mid, err := v.fetchMid(ctx, symbol)
	if err != nil {
		return CloseResult{Symbol: symbol, Error: fmt.Sprintf("fetch mid: %v", err)}
	}

	// Selling to close a long, buying to close a short.
	isBuy := pos.Side == model.SideShort
	price := mid * (1 - aggressionPct)
	if isBuy {
		price = mid * (1 + aggressionPct)
	}

	fill := model.NewOrderFillStatus(uuid.NewString(), pos.Size)
	if err := v.submitIOC(ctx, fill, symbol, roundToTick(price), pos.Size, isBuy, true, credential); err != nil {
		return CloseResult{Symbol: symbol, Error: err.Error()}
	}
	if fill.State == model.FillResting {
		v.pollUntilTerminal(ctx, fill, credential)
	}

	switch fill.State {
	case model.FillFilled, model.FillPartiallyFilled:
		logger.Info("position closed",
			zap.String("symbol", symbol), zap.String("reason", reason),
			zap.Float64("avg_fill_price", fill.AvgFillPrice))
		return CloseResult{
			Success:      true,
			Symbol:       symbol,
			FilledSize:   fill.FilledSize,
			AvgFillPrice: fill.AvgFillPrice,
		}
	default:
		return CloseResult{Symbol: symbol, Error: fill.ErrorMessage}
	}
}

// CloseAll closes every open position, serially against the one credential.
func (v *OrderBookVenue) CloseAll(ctx context.Context, credential string) []CloseResult {
	positions, err := v.GetOpenPositions(ctx, credential)
	if err != nil {
		return []CloseResult{{Error: fmt.Sprintf("fetch positions: %v", err)}}
	}
	results := make([]CloseResult, 0, len(positions))
	for _, pos := range positions {
		results = append(results, v.ClosePosition(ctx, pos.Symbol, string(model.CloseSessionEnd), credential))
	}
	return results
}

// GetOpenPositions queries the venue's account state.
func (v *OrderBookVenue) GetOpenPositions(ctx context.Context, credential string) ([]model.PositionSnapshot, error) {
	body, err := v.infoRequest(ctx, map[string]any{"type": "clearinghouseState", "user": credential})
	if err != nil {
		return nil, err
	}

	var snapshots []model.PositionSnapshot
	gjson.GetBytes(body, "assetPositions").ForEach(func(_, ap gjson.Result) bool {
		pos := ap.Get("position")
		szi := pos.Get("szi").Float()
		if szi == 0 {
			return true
		}
		side := model.SideLong
		size := szi
		if szi < 0 {
			side = model.SideShort
			size = -szi
		}
		snapshots = append(snapshots, model.PositionSnapshot{
			Symbol:        pos.Get("coin").String(),
			Side:          side,
			EntryPrice:    pos.Get("entryPx").Float(),
			Size:          size,
			UnrealizedPnL: pos.Get("unrealizedPnl").Float(),
		})
		return true
	})
	return snapshots, nil
}

// GetAggregatePnL reports account-value change since the first query of
// this process, covering both realized and unrealized PnL.
func (v *OrderBookVenue) GetAggregatePnL(ctx context.Context, credential string) (float64, error) {
	body, err := v.infoRequest(ctx, map[string]any{"type": "clearinghouseState", "user": credential})
	if err != nil {
		return 0, err
	}
	accountValue := gjson.GetBytes(body, "marginSummary.accountValue").Float()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.baselineSet {
		v.pnlBaseline = accountValue
		v.baselineSet = true
		return 0, nil
	}
	return accountValue - v.pnlBaseline, nil
}

// submitIOC submits one immediate-or-cancel limit order and advances the
// fill status from the submit response.
func (v *OrderBookVenue) submitIOC(ctx context.Context, fill *model.OrderFillStatus, symbol string, price, size float64, isBuy, reduceOnly bool, credential string) error {
	payload := map[string]any{
		"action": map[string]any{
			"type": "order",
			"orders": []map[string]any{{
				"coin":        symbol,
				"is_buy":      isBuy,
				"limit_px":    fmt.Sprintf("%v", price),
				"sz":          fmt.Sprintf("%v", size),
				"reduce_only": reduceOnly,
				"cloid":       fill.OrderID,
				"order_type":  map[string]any{"limit": map[string]any{"tif": "Ioc"}},
			}},
		},
		"credential": credential,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	var body []byte
	err = v.retry.Do(ctx, "submit order", func() error {
		var doErr error
		body, doErr = v.post("/exchange", raw)
		return doErr
	})
	if err != nil {
		return err
	}

	if status := gjson.GetBytes(body, "status"); status.String() != "ok" {
		return fill.Fail(fmt.Sprintf("venue rejected order: %s", body))
	}

	st := gjson.GetBytes(body, "response.data.statuses.0")
	switch {
	case st.Get("filled").Exists():
		if err := fill.Advance(model.FillFilled); err != nil {
			return err
		}
		fill.FilledSize = st.Get("filled.totalSz").Float()
		fill.AvgFillPrice = st.Get("filled.avgPx").Float()
	case st.Get("resting").Exists():
		if err := fill.Advance(model.FillResting); err != nil {
			return err
		}
	case st.Get("error").Exists():
		return fill.Fail(st.Get("error").String())
	default:
		return fill.Fail(fmt.Sprintf("unrecognized order status: %s", st.Raw))
	}
	return nil
}

// pollUntilTerminal polls a resting order's status at a fixed interval up
// to the bounded timeout, after which the order is treated as a non-fill.
func (v *OrderBookVenue) pollUntilTerminal(ctx context.Context, fill *model.OrderFillStatus, credential string) {
	deadline := time.Now().Add(v.pollTimeout)
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for !fill.Terminal() {
		if time.Now().After(deadline) {
			_ = fill.Fail(fmt.Sprintf("fill not observed within %s", v.pollTimeout))
			return
		}
		select {
		case <-ctx.Done():
			_ = fill.Fail("cancelled while awaiting fill")
			return
		case <-ticker.C:
		}

		body, err := v.infoRequest(ctx, map[string]any{
			"type": "orderStatus", "cloid": fill.OrderID, "user": credential,
		})
		if err != nil {
			logger.Warn("order status poll failed", zap.String("order", fill.OrderID), zap.Error(err))
			continue
		}

		order := gjson.GetBytes(body, "order")
		filled := order.Get("filledSz").Float()
		switch order.Get("status").String() {
		case "filled":
			if err := fill.Advance(model.FillFilled); err != nil {
				return
			}
			fill.FilledSize = filled
			fill.AvgFillPrice = order.Get("avgFillPx").Float()
		case "canceled", "rejected":
			if filled > 0 {
				if err := fill.Advance(model.FillPartiallyFilled); err != nil {
					return
				}
				fill.FilledSize = filled
				fill.AvgFillPrice = order.Get("avgFillPx").Float()
			} else {
				_ = fill.Fail("order cancelled with no fill")
			}
		}
	}
}

// fetchMid returns the mid price from the top of the book.
func (v *OrderBookVenue) fetchMid(ctx context.Context, symbol string) (float64, error) {
	body, err := v.infoRequest(ctx, map[string]any{"type": "l2Book", "coin": symbol})
	if err != nil {
		return 0, err
	}
	bid := gjson.GetBytes(body, "levels.0.0.px").Float()
	ask := gjson.GetBytes(body, "levels.1.0.px").Float()
	if bid <= 0 || ask <= 0 {
		return 0, fmt.Errorf("empty book for %s", symbol)
	}
	return (bid + ask) / 2, nil
}

func (v *OrderBookVenue) infoRequest(ctx context.Context, payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = v.retry.Do(ctx, "info request", func() error {
		var doErr error
		body, doErr = v.post("/info", raw)
		return doErr
	})
	return body, err
}

func (v *OrderBookVenue) post(path string, payload []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := v.client.DoTimeout(req, resp, 15*time.Second); err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}
