// Package ledger tracks open positions and closed-trade history and keeps
// running performance statistics.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"PerpPilot/internal/model"
	"PerpPilot/internal/recorder"
	"PerpPilot/pkg/logger"
)

// Stats summarizes closed-trade performance. A win is strictly positive
// PnL; breakeven counts as a loss.
type Stats struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64
	TotalPnL    float64
	AvgPnL      float64
	AvgWin      float64
	AvgLoss     float64
	LargestWin  float64
	LargestLoss float64
}

// Ledger is the single source of truth for position state: at most one
// open position per symbol, an append-only close history, and stats
// recomputed after every close. Closed trades are persisted through the
// recorder; persistence failures are logged, never fatal.
type Ledger struct {
	mu        sync.Mutex
	open      map[string]*model.TradeRecord
	closed    []model.TradeRecord
	snapshots map[string]model.PositionSnapshot
	stats     Stats
	rec       recorder.Recorder
}

// New creates an empty ledger persisting through rec.
func New(rec recorder.Recorder) *Ledger {
	return &Ledger{
		open:      make(map[string]*model.TradeRecord),
		snapshots: make(map[string]model.PositionSnapshot),
		rec:       rec,
	}
}

// RecordOpen registers a confirmed fill as an open position. A second open
// on the same symbol is rejected; the engine never pyramids.
func (l *Ledger) RecordOpen(symbol string, side model.Side, entryPrice, size float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.open[symbol]; exists {
		return fmt.Errorf("position already open on %s", symbol)
	}
	l.open[symbol] = &model.TradeRecord{
		Symbol:       symbol,
		Side:         side,
		EntryTime:    time.Now(),
		EntryPrice:   entryPrice,
		PositionSize: size,
		Status:       model.TradeOpen,
	}
	logger.Info("position opened",
		zap.String("symbol", symbol), zap.String("side", string(side)),
		zap.Float64("entry_price", entryPrice), zap.Float64("size", size))
	return nil
}

// RecordClose moves an open position to history with its realized PnL. A
// close with no matching open record is reconstructed from the last venue
// snapshot when one exists; with no snapshot either, the event is logged
// and skipped rather than guessed at.
func (l *Ledger) RecordClose(symbol string, exitPrice, pnl float64, reason model.CloseReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.open[symbol]
	if !ok {
		snap, hasSnap := l.snapshots[symbol]
		if !hasSnap {
			logger.Warn("close event for unknown position, skipping",
				zap.String("symbol", symbol), zap.String("reason", string(reason)))
			return
		}
		logger.Warn("close event for untracked position, reconstructing from last snapshot",
			zap.String("symbol", symbol))
		trade = &model.TradeRecord{
			Symbol:       symbol,
			Side:         snap.Side,
			EntryTime:    time.Now(),
			EntryPrice:   snap.EntryPrice,
			PositionSize: snap.Size,
			Status:       model.TradeOpen,
		}
	}

	trade.Status = model.StatusForReason(reason)
	trade.ExitTime = time.Now()
	trade.ExitPrice = exitPrice
	trade.PnL = pnl
	trade.Reason = reason

	delete(l.open, symbol)
	delete(l.snapshots, symbol)
	l.closed = append(l.closed, *trade)
	l.recompute()

	logger.Info("position closed",
		zap.String("symbol", symbol), zap.String("status", string(trade.Status)),
		zap.Float64("pnl", pnl))

	if err := l.rec.RecordTrade(*trade); err != nil {
		logger.Warn("persist trade failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// NoteSnapshot stores the latest venue-reported view of an open position,
// kept for reconstructing closes the engine did not observe.
func (l *Ledger) NoteSnapshot(snap model.PositionSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots[snap.Symbol] = snap
}

// HasOpen reports whether a position is open on the symbol.
func (l *Ledger) HasOpen(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.open[symbol]
	return ok
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// OpenSymbols returns the symbols with open positions.
func (l *Ledger) OpenSymbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	symbols := make([]string, 0, len(l.open))
	for sym := range l.open {
		symbols = append(symbols, sym)
	}
	return symbols
}

// OpenTrade returns a copy of the open trade record for the symbol.
func (l *Ledger) OpenTrade(symbol string) (model.TradeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	trade, ok := l.open[symbol]
	if !ok {
		return model.TradeRecord{}, false
	}
	return *trade, true
}

// ClosedTrades returns a copy of the close history.
func (l *Ledger) ClosedTrades() []model.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.TradeRecord, len(l.closed))
	copy(out, l.closed)
	return out
}

// Stats returns the current performance statistics.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// recompute rebuilds the statistics from the full close history. Called
// with the lock held after every close.
func (l *Ledger) recompute() {
	var s Stats
	var winSum, lossSum float64

	for _, t := range l.closed {
		s.TotalTrades++
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
			winSum += t.PnL
			if t.PnL > s.LargestWin {
				s.LargestWin = t.PnL
			}
		} else {
			s.Losses++
			lossSum += t.PnL
			if t.PnL < s.LargestLoss {
				s.LargestLoss = t.PnL
			}
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
		s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
	}
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum / float64(s.Losses)
	}
	l.stats = s
}
