package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"PerpPilot/internal/model"
)

func TestTickSize_StepFunction(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{65000, "1"},
		{10000, "1"},
		{3500, "0.1"},
		{1000, "0.1"},
		{150, "0.01"},
		{42, "0.001"},
		{2.5, "0.0001"},
		{0.15, "0.00001"},
	}
	for _, tt := range tests {
		if got := tickSize(tt.price).String(); got != tt.want {
			t.Errorf("tickSize(%.2f) = %s, want %s", tt.price, got, tt.want)
		}
	}
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price float64
		want  float64
	}{
		{65123.7, 65124},
		{3512.34, 3512.3},
		{151.237, 151.24},
		{2.51237, 2.5124},
	}
	for _, tt := range tests {
		if got := roundToTick(tt.price); got != tt.want {
			t.Errorf("roundToTick(%v) = %v, want %v", tt.price, got, tt.want)
		}
	}
}

func TestRoundSize_FloorsToInstrumentDecimals(t *testing.T) {
	meta := defaultInstruments["BTC"]
	if got := roundSize(0.0123456, meta); got != 0.01234 {
		t.Errorf("expected floor to 5 decimals, got %v", got)
	}
	// Flooring, not rounding: a size just under the minimum must not be
	// bumped over it.
	if got := roundSize(0.000099, meta); got != 0.00009 {
		t.Errorf("expected 0.00009, got %v", got)
	}
}

// bookServer fakes the order-book venue's /info and /exchange endpoints.
type bookServer struct {
	mu sync.Mutex

	mid            float64
	submitStatuses []string // JSON per /exchange call, consumed in order
	orderStatus    string   // JSON for orderStatus polls
	submits        int
	polls          int
	accountValue   float64
}

func (b *bookServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		body := []byte(`{}`)
		raw, _ := io.ReadAll(r.Body)

		switch r.URL.Path {
		case "/info":
			switch gjson.GetBytes(raw, "type").String() {
			case "l2Book":
				body = []byte(fmt.Sprintf(`{"levels":[[{"px":"%v"}],[{"px":"%v"}]]}`, b.mid-1, b.mid+1))
			case "orderStatus":
				b.polls++
				body = []byte(b.orderStatus)
			case "clearinghouseState":
				body = []byte(fmt.Sprintf(`{
					"marginSummary":{"accountValue":"%v"},
					"assetPositions":[
						{"position":{"coin":"BTC","szi":"0.01","entryPx":"50000","unrealizedPnl":"25"}},
						{"position":{"coin":"ETH","szi":"-1.5","entryPx":"3000","unrealizedPnl":"-10"}},
						{"position":{"coin":"SOL","szi":"0","entryPx":"150","unrealizedPnl":"0"}}
					]}`, b.accountValue))
			}
		case "/exchange":
			status := `{"status":"ok","response":{"data":{"statuses":[{"error":"no status configured"}]}}}`
			if b.submits < len(b.submitStatuses) {
				status = b.submitStatuses[b.submits]
			}
			b.submits++
			body = []byte(status)
		}
		w.Write(body)
	})
}

func newBookTest(t *testing.T, b *bookServer) *OrderBookVenue {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return NewOrderBookVenue(srv.URL, fastPolicy(2), 5*time.Millisecond, 100*time.Millisecond)
}

const filledStatus = `{"status":"ok","response":{"data":{"statuses":[{"filled":{"totalSz":"0.002","avgPx":"50010","oid":77}}]}}}`
const restingStatus = `{"status":"ok","response":{"data":{"statuses":[{"resting":{"oid":77}}]}}}`

func TestOpenPosition_ImmediateFill(t *testing.T) {
	b := &bookServer{mid: 50000, submitStatuses: []string{filledStatus}}
	v := newBookTest(t, b)

	res := v.OpenPosition(context.Background(), "BTC", 10, 10, true, "0xuser")
	if !res.Success {
		t.Fatalf("expected fill, got %q", res.Error)
	}
	if res.AvgFillPrice != 50010 || res.FilledSize != 0.002 {
		t.Errorf("result must carry the actual fill, got %+v", res)
	}
	if b.submits != 1 {
		t.Errorf("an immediate fill needs no escalation, got %d submits", b.submits)
	}
}

func TestOpenPosition_EscalatesThenPollsToFill(t *testing.T) {
	b := &bookServer{
		mid:            50000,
		submitStatuses: []string{restingStatus, restingStatus},
		orderStatus:    `{"order":{"status":"filled","filledSz":"0.002","avgFillPx":"50002"}}`,
	}
	v := newBookTest(t, b)

	res := v.OpenPosition(context.Background(), "BTC", 10, 10, true, "0xuser")
	if !res.Success {
		t.Fatalf("expected fill after poll, got %q", res.Error)
	}
	if b.submits != 2 {
		t.Errorf("expected the one mid-price escalation, got %d submits", b.submits)
	}
	if b.polls == 0 {
		t.Error("expected status polling on the escalated order")
	}
	if res.AvgFillPrice != 50002 {
		t.Errorf("fill price must come from the poll, got %v", res.AvgFillPrice)
	}
}

func TestOpenPosition_VenueRejectionIsTerminal(t *testing.T) {
	rejected := `{"status":"ok","response":{"data":{"statuses":[{"error":"insufficient margin"}]}}}`
	b := &bookServer{mid: 50000, submitStatuses: []string{rejected}}
	v := newBookTest(t, b)

	res := v.OpenPosition(context.Background(), "BTC", 10, 10, true, "0xuser")
	if res.Success {
		t.Fatal("a rejected order must fail the open")
	}
	if res.Error != "insufficient margin" {
		t.Errorf("expected the venue's rejection verbatim, got %q", res.Error)
	}
	if b.submits != 1 {
		t.Errorf("a rejection earns no escalation, got %d submits", b.submits)
	}
}

func TestOpenPosition_PollTimeoutIsNonFill(t *testing.T) {
	b := &bookServer{
		mid:            50000,
		submitStatuses: []string{restingStatus, restingStatus},
		orderStatus:    `{"order":{"status":"open","filledSz":"0"}}`,
	}
	v := newBookTest(t, b)

	res := v.OpenPosition(context.Background(), "BTC", 10, 10, true, "0xuser")
	if res.Success {
		t.Fatal("an unfilled order at the poll deadline must be a non-fill")
	}
	if res.Error == "" {
		t.Error("timeout must carry an error message")
	}
}

func TestOpenPosition_CancelWithPartialFillIsTerminal(t *testing.T) {
	b := &bookServer{
		mid:            50000,
		submitStatuses: []string{restingStatus, restingStatus},
		orderStatus:    `{"order":{"status":"canceled","filledSz":"0.001","avgFillPx":"50001"}}`,
	}
	v := newBookTest(t, b)

	res := v.OpenPosition(context.Background(), "BTC", 10, 10, true, "0xuser")
	if !res.Success {
		t.Fatalf("a partial fill is a (smaller) position, got error %q", res.Error)
	}
	if res.FilledSize != 0.001 {
		t.Errorf("expected the partial size, got %v", res.FilledSize)
	}
}

func TestOpenPosition_RejectsBelowMinSize(t *testing.T) {
	b := &bookServer{mid: 50000}
	v := newBookTest(t, b)

	// $1 at 1x on BTC is 0.00002 BTC, under the 0.0001 minimum.
	res := v.OpenPosition(context.Background(), "BTC", 1, 1, true, "0xuser")
	if res.Success {
		t.Fatal("expected rejection below the instrument minimum")
	}
	if b.submits != 0 {
		t.Error("size validation must happen before any order is sent")
	}
}

func TestGetOpenPositions_ParsesSignedSizes(t *testing.T) {
	b := &bookServer{mid: 50000, accountValue: 1000}
	v := newBookTest(t, b)

	positions, err := v.GetOpenPositions(context.Background(), "0xuser")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 {
		t.Fatalf("zero-size entries must be dropped, got %d positions", len(positions))
	}
	if positions[0].Symbol != "BTC" || positions[0].Side != model.SideLong {
		t.Errorf("unexpected first position %+v", positions[0])
	}
	if positions[1].Side != model.SideShort || positions[1].Size != 1.5 {
		t.Errorf("negative szi must become a short with positive size, got %+v", positions[1])
	}
}

func TestGetAggregatePnL_BaselineDelta(t *testing.T) {
	b := &bookServer{mid: 50000, accountValue: 1000}
	v := newBookTest(t, b)

	pnl, err := v.GetAggregatePnL(context.Background(), "0xuser")
	if err != nil {
		t.Fatal(err)
	}
	if pnl != 0 {
		t.Errorf("first query sets the baseline, expected 0, got %.2f", pnl)
	}

	b.mu.Lock()
	b.accountValue = 1025
	b.mu.Unlock()

	pnl, err = v.GetAggregatePnL(context.Background(), "0xuser")
	if err != nil {
		t.Fatal(err)
	}
	if pnl != 25 {
		t.Errorf("expected delta 25, got %.2f", pnl)
	}
}
