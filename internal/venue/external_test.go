package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PerpPilot/internal/model"
)

func newExternalTest(t *testing.T, handler http.Handler) *ExternalVenue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExternalVenue(srv.URL, fastPolicy(2), 0)
}

func TestExternalOpen_SuccessIsFinal(t *testing.T) {
	var gotReq openPositionRequest
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/open-position" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(openPositionResponse{
			Success: true, TransactionHash: "0xabc", EntryPrice: 50000, PositionSize: 0.02,
		})
	}))

	res := v.OpenPosition(context.Background(), "BTC", 100, 10, true, "key")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Reference != "0xabc" || res.AvgFillPrice != 50000 || res.FilledSize != 0.02 {
		t.Errorf("result must carry the service's final values: %+v", res)
	}
	if gotReq.Symbol != "BTC" || gotReq.Collateral != 100 || gotReq.Leverage != 10 || !gotReq.IsLong {
		t.Errorf("request lost fields: %+v", gotReq)
	}
	if gotReq.PrivateKey != "key" {
		t.Error("credential must travel with each request")
	}
}

func TestExternalOpen_ValidatesBeforeSending(t *testing.T) {
	called := false
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	if res := v.OpenPosition(context.Background(), "WIF", 100, 10, true, "key"); res.Success {
		t.Error("unknown symbol must be rejected")
	}
	if res := v.OpenPosition(context.Background(), "BTC", 100, 51, true, "key"); res.Success {
		t.Error("leverage above the service range must be rejected")
	}
	if called {
		t.Error("local validation failures must never reach the service")
	}
}

func TestExternalOpen_ServiceFailureCarriesError(t *testing.T) {
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openPositionResponse{Success: false, Error: "insufficient allowance"})
	}))

	res := v.OpenPosition(context.Background(), "ETH", 100, 5, false, "key")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "insufficient allowance" {
		t.Errorf("expected the service's error verbatim, got %q", res.Error)
	}
}

func TestExternalClose_AddressesByPairIndex(t *testing.T) {
	var gotReq closePositionRequest
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(closePositionResponse{
			Success: true, ClosePrice: 160, ClosedSize: 2,
		})
	}))

	res := v.ClosePosition(context.Background(), "SOL", "take_profit", "key")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if gotReq.PairIndex != 2 {
		t.Errorf("SOL must map to pair index 2, got %d", gotReq.PairIndex)
	}
	if res.AvgFillPrice != 160 || res.FilledSize != 2 {
		t.Errorf("close result must carry the final fill values: %+v", res)
	}
}

func TestExternalGetOpenPositions_SkipsUnknownPairs(t *testing.T) {
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"positions": []servicePosition{
				{PairIndex: 0, IsLong: true, EntryPrice: 50000, PositionSize: 0.01, UnrealizedPnL: 25},
				{PairIndex: 99, IsLong: false, EntryPrice: 1, PositionSize: 100},
			},
		})
	}))

	positions, err := v.GetOpenPositions(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("unknown pair must be skipped, got %d positions", len(positions))
	}
	p := positions[0]
	if p.Symbol != "BTC" || p.Side != model.SideLong || p.UnrealizedPnL != 25 {
		t.Errorf("unexpected snapshot %+v", p)
	}
}

func TestExternalRetry_TransientGatewayErrors(t *testing.T) {
	calls := 0
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"total_pnl": 12.5})
	}))

	pnl, err := v.GetAggregatePnL(context.Background(), "key")
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if pnl != 12.5 {
		t.Errorf("expected 12.5, got %.2f", pnl)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestExternalRetry_MalformedResponseNotRetried(t *testing.T) {
	calls := 0
	v := newExternalTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("not json"))
	}))

	if _, err := v.GetAggregatePnL(context.Background(), "key"); err == nil {
		t.Fatal("expected a decode failure")
	}
	if calls != 1 {
		t.Errorf("a malformed payload must not be retried, got %d calls", calls)
	}
}

func TestPairIndexRoundTrip(t *testing.T) {
	for sym, idx := range pairIndex {
		got, err := SymbolForPairIndex(idx)
		if err != nil || got != sym {
			t.Errorf("index %d: got %q, %v", idx, got, err)
		}
	}
	if _, err := PairIndexFor("WIF"); err == nil {
		t.Error("unknown symbol must error")
	}
}
