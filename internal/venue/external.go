package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

// externalMinCollateral is the external service's minimum collateral per
// position, higher than the order-book venue's.
const externalMinCollateral = 25.0

// ExternalVenue executes through an external contract-execution HTTP
// service. The service handles order placement internally and responds
// only when the operation has fully succeeded or failed: results are
// final, there is no partial-fill observation and no status polling.
type ExternalVenue struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
}

// NewExternalVenue creates the external-service execution strategy. The
// timeout covers one full request: on-chain settlement can take a while, so
// it is configured rather than assumed.
func NewExternalVenue(baseURL string, retry RetryPolicy, timeout time.Duration) *ExternalVenue {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExternalVenue{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

func (v *ExternalVenue) Name() string           { return "external" }
func (v *ExternalVenue) MinCollateral() float64 { return externalMinCollateral }

// Healthy checks the service's health endpoint.
func (v *ExternalVenue) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

type openPositionRequest struct {
	Symbol     string  `json:"symbol"`
	Collateral float64 `json:"collateral"`
	Leverage   int     `json:"leverage"`
	IsLong     bool    `json:"is_long"`
	TakeProfit float64 `json:"tp,omitempty"`
	StopLoss   float64 `json:"sl,omitempty"`
	PrivateKey string  `json:"private_key"`
}

type openPositionResponse struct {
	Success         bool    `json:"success"`
	TransactionHash string  `json:"transaction_hash"`
	EntryPrice      float64 `json:"entry_price"`
	PositionSize    float64 `json:"position_size"`
	Error           string  `json:"error"`
}

// OpenPosition asks the service to open a position. The response is
// synchronous and final: success means the position is live at the
// reported entry price, failure means nothing was opened.
func (v *ExternalVenue) OpenPosition(ctx context.Context, symbol string, collateralUSD float64, leverage int, isLong bool, credential string) OpenResult {
	if _, err := PairIndexFor(symbol); err != nil {
		return OpenResult{Error: err.Error()}
	}
	if leverage < 1 || leverage > 50 {
		return OpenResult{Error: fmt.Sprintf("leverage %d outside service range [1, 50]", leverage)}
	}

	var out openPositionResponse
	err := v.postJSON(ctx, "/api/open-position", openPositionRequest{
		Symbol:     symbol,
		Collateral: collateralUSD,
		Leverage:   leverage,
		IsLong:     isLong,
		PrivateKey: credential,
	}, &out)
	if err != nil {
		return OpenResult{Error: err.Error()}
	}
	if !out.Success {
		return OpenResult{Error: out.Error}
	}
	size := out.PositionSize
	if size == 0 && out.EntryPrice > 0 {
		size = collateralUSD * float64(leverage) / out.EntryPrice
	}
	return OpenResult{
		Success:      true,
		Reference:    out.TransactionHash,
		AvgFillPrice: out.EntryPrice,
		FilledSize:   size,
	}
}

type closePositionRequest struct {
	PairIndex  int    `json:"pair_index"`
	PrivateKey string `json:"private_key"`
}

type closePositionResponse struct {
	Success         bool    `json:"success"`
	TransactionHash string  `json:"transaction_hash"`
	ClosePrice      float64 `json:"close_price"`
	ClosedSize      float64 `json:"closed_size"`
	Error           string  `json:"error"`
}

// ClosePosition asks the service to close the position on the symbol's
// pair. The response is final; no fill observation follows.
func (v *ExternalVenue) ClosePosition(ctx context.Context, symbol, reason, credential string) CloseResult {
	idx, err := PairIndexFor(symbol)
	if err != nil {
		return CloseResult{Symbol: symbol, Error: err.Error()}
	}

	var out closePositionResponse
	if err := v.postJSON(ctx, "/api/close-position", closePositionRequest{
		PairIndex:  idx,
		PrivateKey: credential,
	}, &out); err != nil {
		return CloseResult{Symbol: symbol, Error: err.Error()}
	}
	if !out.Success {
		return CloseResult{Symbol: symbol, Error: out.Error}
	}
	logger.Info("position closed",
		zap.String("symbol", symbol), zap.String("reason", reason),
		zap.String("tx", out.TransactionHash))
	return CloseResult{
		Success:      true,
		Symbol:       symbol,
		FilledSize:   out.ClosedSize,
		AvgFillPrice: out.ClosePrice,
	}
}

type closeAllResponse struct {
	Success bool   `json:"success"`
	Closed  []int  `json:"closed_pairs"`
	Error   string `json:"error"`
}

// CloseAll asks the service to close every open position in one call.
func (v *ExternalVenue) CloseAll(ctx context.Context, credential string) []CloseResult {
	var out closeAllResponse
	if err := v.postJSON(ctx, "/api/close-all-positions", map[string]string{
		"private_key": credential,
	}, &out); err != nil {
		return []CloseResult{{Error: err.Error()}}
	}
	if !out.Success {
		return []CloseResult{{Error: out.Error}}
	}
	results := make([]CloseResult, 0, len(out.Closed))
	for _, idx := range out.Closed {
		sym, err := SymbolForPairIndex(idx)
		if err != nil {
			results = append(results, CloseResult{Success: true, Symbol: fmt.Sprintf("pair-%d", idx)})
			continue
		}
		results = append(results, CloseResult{Success: true, Symbol: sym})
	}
	return results
}

type servicePosition struct {
	PairIndex     int     `json:"pair_index"`
	IsLong        bool    `json:"is_long"`
	EntryPrice    float64 `json:"entry_price"`
	PositionSize  float64 `json:"position_size"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// GetOpenPositions queries the service's position list. Positions on pairs
// the registry does not know are skipped with a warning.
func (v *ExternalVenue) GetOpenPositions(ctx context.Context, credential string) ([]model.PositionSnapshot, error) {
	var out struct {
		Positions []servicePosition `json:"positions"`
	}
	url := fmt.Sprintf("%s/api/positions?address=%s", v.baseURL, credential)
	if err := v.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}

	snapshots := make([]model.PositionSnapshot, 0, len(out.Positions))
	for _, p := range out.Positions {
		sym, err := SymbolForPairIndex(p.PairIndex)
		if err != nil {
			logger.Warn("skipping position on unknown pair", zap.Int("pair_index", p.PairIndex))
			continue
		}
		side := model.SideShort
		if p.IsLong {
			side = model.SideLong
		}
		snapshots = append(snapshots, model.PositionSnapshot{
			Symbol:        sym,
			Side:          side,
			EntryPrice:    p.EntryPrice,
			Size:          p.PositionSize,
			UnrealizedPnL: p.UnrealizedPnL,
		})
	}
	return snapshots, nil
}

// GetAggregatePnL queries the service's combined PnL across all positions.
func (v *ExternalVenue) GetAggregatePnL(ctx context.Context, credential string) (float64, error) {
	var out struct {
		TotalPnL float64 `json:"total_pnl"`
	}
	url := fmt.Sprintf("%s/api/total-pnl?address=%s", v.baseURL, credential)
	if err := v.getJSON(ctx, url, &out); err != nil {
		return 0, err
	}
	return out.TotalPnL, nil
}

func (v *ExternalVenue) postJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return v.retry.Do(ctx, "post "+path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return v.doJSON(req, out)
	})
}

func (v *ExternalVenue) getJSON(ctx context.Context, url string, out any) error {
	return v.retry.Do(ctx, "get "+url, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		return v.doJSON(req, out)
	})
}

func (v *ExternalVenue) doJSON(req *http.Request, out any) error {
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Terminal(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
