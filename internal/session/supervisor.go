// Package session runs the trading loop: a Supervisor drives one session
// through its cycles until a terminal condition, and a Runner restarts
// fresh sessions around it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PerpPilot/internal/budget"
	"PerpPilot/internal/config"
	"PerpPilot/internal/ledger"
	"PerpPilot/internal/model"
	"PerpPilot/internal/notifier"
	"PerpPilot/internal/recorder"
	"PerpPilot/internal/regime"
	"PerpPilot/internal/signal"
	"PerpPilot/internal/venue"
	"PerpPilot/pkg/logger"
)

// CandleSource supplies candle series. Satisfied by marketdata.Aggregator.
type CandleSource interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) model.CandleSeries
}

// Evaluator produces signal decisions. Satisfied by signal.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, primary model.CandleSeries, sctx signal.Context) model.SignalDecision
}

// exitTargets are the engine-managed exit prices for one open position,
// anchored to the actual fill price.
type exitTargets struct {
	side       model.Side
	takeProfit float64
	stopLoss   float64
}

// Deps are the collaborators a Supervisor drives.
type Deps struct {
	Venue    venue.Adapter
	Source   CandleSource
	Eval     Evaluator
	Alloc    *budget.Allocator
	Ledger   *ledger.Ledger
	Recorder recorder.Recorder
	Notifier notifier.Notifier
	Stop     *StopFile
	Leverage budget.LeverageTable
}

// Supervisor runs one trading session: per cycle it checks the stop file,
// reconciles venue state with the ledger, enforces exit targets, checks
// the terminal conditions, and evaluates idle symbols for new entries.
// Evaluation fans out concurrently; opens are strictly serialized, the
// venue credential tolerates no concurrent transactions.
type Supervisor struct {
	cfg  *config.Config
	sess model.SessionConfig
	deps Deps

	id           string
	exits        map[string]exitTargets
	lastSeen     map[string]model.PositionSnapshot
	hadPositions bool
}

// New creates a Supervisor for one session.
func New(cfg *config.Config, sess model.SessionConfig, deps Deps) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		sess:     sess,
		deps:     deps,
		exits:    make(map[string]exitTargets),
		lastSeen: make(map[string]model.PositionSnapshot),
	}
}

// Run drives the session to a terminal condition and returns its result.
// A panic inside the loop ends the session as a fatal error instead of
// crashing the process; the Runner decides whether to restart.
func (s *Supervisor) Run(ctx context.Context) (result model.SessionResult) {
	s.id = uuid.NewString()
	result = model.SessionResult{ID: s.id, StartedAt: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", zap.String("session", s.id), zap.Any("panic", r))
			result.Reason = model.ReasonFatalError
		}
		result.EndedAt = time.Now()
		if result.FinalPnL == 0 {
			if pnl, err := s.deps.Venue.GetAggregatePnL(context.Background(), s.sess.Credential); err == nil {
				result.FinalPnL = pnl
			}
		}
		if err := s.deps.Recorder.RecordSession(result); err != nil {
			logger.Warn("persist session failed", zap.Error(err))
		}
		// The session context may already be cancelled; the end-of-session
		// message still gets its delivery retries.
		s.notify(context.Background(), notifier.FormatSessionEnd(result, s.deps.Ledger.Stats()))
	}()

	logger.Info("session started",
		zap.String("session", s.id),
		zap.String("venue", string(s.sess.Venue)),
		zap.Float64("budget_usd", s.sess.MaxBudgetUSD),
		zap.Float64("profit_goal_usd", s.sess.ProfitGoalUSD))
	s.notify(ctx, notifier.FormatSessionStart(s.id, s.sess))

	delay := time.Duration(s.cfg.Trading.CycleDelaySeconds) * time.Second
	for cycle := 1; cycle <= s.cfg.Trading.MaxCycles; cycle++ {
		result.CyclesRun = cycle

		reason, pnl, done := s.runCycle(ctx, cycle)
		if done {
			result.Reason = reason
			result.FinalPnL = pnl
			return result
		}

		select {
		case <-ctx.Done():
			result.Reason = model.ReasonUserStopped
			return result
		case <-time.After(delay):
		}
	}

	result.Reason = model.ReasonMaxCyclesReached
	return result
}

// runCycle executes one cycle. It returns done=true with the terminal
// reason when the session must end.
func (s *Supervisor) runCycle(ctx context.Context, cycle int) (model.TerminalReason, float64, bool) {
	// A stop request is honored at the cycle boundary: open positions are
	// deliberately left open, the user asked the engine to stop, not to
	// flatten.
	if stopped, at := s.deps.Stop.Check(); stopped {
		logger.Info("stop file found, ending session",
			zap.String("session", s.id), zap.Time("requested_at", at),
			zap.Int("positions_left_open", s.deps.Ledger.OpenCount()))
		s.deps.Stop.Clear()
		return model.ReasonUserStopped, 0, true
	}

	pnl, err := s.deps.Venue.GetAggregatePnL(ctx, s.sess.Credential)
	if err != nil {
		logger.Warn("aggregate pnl unavailable, skipping cycle", zap.Error(err))
		return "", 0, false
	}
	positions, err := s.deps.Venue.GetOpenPositions(ctx, s.sess.Credential)
	if err != nil {
		logger.Warn("positions unavailable, skipping cycle", zap.Error(err))
		return "", 0, false
	}

	s.reconcile(ctx, positions)
	s.enforceExits(ctx, positions)

	if len(positions) > 0 {
		s.hadPositions = true
	}

	// All positions gone without the engine closing them, with the budget
	// essentially wiped: everything was liquidated. Guarded by
	// hadPositions so an idle session never trips it.
	if s.hadPositions && len(positions) == 0 && s.deps.Ledger.OpenCount() == 0 &&
		pnl <= -s.sess.MaxBudgetUSD*0.9 {
		logger.Error("all positions liquidated", zap.Float64("pnl", pnl))
		return model.ReasonAllLiquidated, pnl, true
	}

	if pnl >= s.sess.ProfitGoalUSD {
		logger.Info("profit goal reached, flattening",
			zap.Float64("pnl", pnl), zap.Float64("goal", s.sess.ProfitGoalUSD))
		s.closeAll(ctx)
		return model.ReasonProfitGoalReached, pnl, true
	}

	lossLimit := -s.sess.MaxBudgetUSD * s.cfg.Trading.LossFraction
	if pnl <= lossLimit {
		logger.Warn("session loss limit hit, flattening",
			zap.Float64("pnl", pnl), zap.Float64("limit", lossLimit))
		s.closeAll(ctx)
		return model.ReasonStopLossTriggered, pnl, true
	}

	s.evaluateAndOpen(ctx)

	logger.Debug("cycle complete",
		zap.Int("cycle", cycle), zap.Float64("pnl", pnl),
		zap.Int("open_positions", s.deps.Ledger.OpenCount()))
	return "", 0, false
}

// reconcile aligns ledger state with the venue's view. A ledger-open
// position the venue no longer reports was closed externally (venue-side
// stop, liquidation); its close is recorded from the last snapshot.
func (s *Supervisor) reconcile(ctx context.Context, positions []model.PositionSnapshot) {
	onVenue := make(map[string]bool, len(positions))
	for _, snap := range positions {
		onVenue[snap.Symbol] = true
		s.deps.Ledger.NoteSnapshot(snap)
		s.lastSeen[snap.Symbol] = snap
	}

	for _, sym := range s.deps.Ledger.OpenSymbols() {
		if onVenue[sym] {
			continue
		}
		snap, seen := s.lastSeen[sym]
		if !seen {
			logger.Warn("position vanished with no snapshot, closing at zero", zap.String("symbol", sym))
			s.deps.Ledger.RecordClose(sym, 0, 0, model.CloseManual)
			continue
		}
		exitPrice := impliedPrice(snap)
		reason := s.externalCloseReason(snap)
		logger.Info("position closed externally",
			zap.String("symbol", sym), zap.String("reason", string(reason)),
			zap.Float64("pnl", snap.UnrealizedPnL))
		s.deps.Ledger.RecordClose(sym, exitPrice, snap.UnrealizedPnL, reason)
		if trade, ok := lastClosed(s.deps.Ledger, sym); ok {
			s.notify(ctx, notifier.FormatTradeClose(trade))
		}
		delete(s.exits, sym)
		delete(s.lastSeen, sym)
	}
}

// externalCloseReason classifies a close the engine did not initiate.
// Collateral is estimated from notional at the session's target leverage;
// losing most of it means liquidation, otherwise the sign of the PnL
// decides between the venue-side stop and target.
func (s *Supervisor) externalCloseReason(snap model.PositionSnapshot) model.CloseReason {
	lev := s.cfg.Budget.TargetLeverage
	if lev <= 0 {
		lev = 1
	}
	collateral := snap.EntryPrice * snap.Size / float64(lev)
	if collateral > 0 && snap.UnrealizedPnL <= -collateral*0.8 {
		return model.CloseLiquidation
	}
	if snap.UnrealizedPnL > 0 {
		return model.CloseTakeProfit
	}
	return model.CloseStopLoss
}

// enforceExits closes positions whose implied mark price has crossed the
// engine-managed take-profit or stop-loss anchored to the fill.
func (s *Supervisor) enforceExits(ctx context.Context, positions []model.PositionSnapshot) {
	for _, snap := range positions {
		target, ok := s.exits[snap.Symbol]
		if !ok {
			continue
		}
		mark := impliedPrice(snap)
		if mark <= 0 {
			continue
		}

		var reason model.CloseReason
		switch target.side {
		case model.SideLong:
			if mark >= target.takeProfit {
				reason = model.CloseTakeProfit
			} else if mark <= target.stopLoss {
				reason = model.CloseStopLoss
			}
		case model.SideShort:
			if mark <= target.takeProfit {
				reason = model.CloseTakeProfit
			} else if mark >= target.stopLoss {
				reason = model.CloseStopLoss
			}
		}
		if reason == "" {
			continue
		}

		res := s.deps.Venue.ClosePosition(ctx, snap.Symbol, string(reason), s.sess.Credential)
		if !res.Success {
			logger.Warn("exit close failed, retrying next cycle",
				zap.String("symbol", snap.Symbol), zap.String("error", res.Error))
			continue
		}
		s.recordVenueClose(ctx, snap.Symbol, res, reason)
	}
}

// closeAll flattens every position at session end and records the closes.
func (s *Supervisor) closeAll(ctx context.Context) {
	for _, res := range s.deps.Venue.CloseAll(ctx, s.sess.Credential) {
		if !res.Success {
			logger.Warn("close failed during flatten", zap.String("symbol", res.Symbol), zap.String("error", res.Error))
			continue
		}
		s.recordVenueClose(ctx, res.Symbol, res, model.CloseSessionEnd)
	}
}

// recordVenueClose records a close from its actual fill, computing realized
// PnL against the ledger's entry price.
func (s *Supervisor) recordVenueClose(ctx context.Context, symbol string, res venue.CloseResult, reason model.CloseReason) {
	pnl := 0.0
	exitPrice := res.AvgFillPrice
	if trade, ok := s.deps.Ledger.OpenTrade(symbol); ok {
		size := res.FilledSize
		if size == 0 {
			size = trade.PositionSize
		}
		diff := exitPrice - trade.EntryPrice
		if trade.Side == model.SideShort {
			diff = -diff
		}
		pnl = diff * size
	} else if snap, seen := s.lastSeen[symbol]; seen {
		pnl = snap.UnrealizedPnL
	}

	s.deps.Ledger.RecordClose(symbol, exitPrice, pnl, reason)
	if trade, ok := lastClosed(s.deps.Ledger, symbol); ok {
		s.notify(ctx, notifier.FormatTradeClose(trade))
	}
	delete(s.exits, symbol)
	delete(s.lastSeen, symbol)
}

type candidate struct {
	symbol   string
	decision model.SignalDecision
	budget   model.BudgetDecision
}

// evaluateAndOpen evaluates idle symbols concurrently, then opens the
// accepted ones one at a time while slots remain.
func (s *Supervisor) evaluateAndOpen(ctx context.Context) {
	slots := s.sess.MaxConcurrentPositions - s.deps.Ledger.OpenCount()
	if slots <= 0 {
		return
	}

	var (
		mu         sync.Mutex
		candidates []candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range s.cfg.Trading.Symbols {
		if s.deps.Ledger.HasOpen(sym) {
			continue
		}
		sym := sym
		g.Go(func() error {
			if c, ok := s.evaluateSymbol(gctx, sym); ok {
				mu.Lock()
				candidates = append(candidates, c)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait() // workers record their own rejections and never error

	for _, c := range candidates {
		if slots <= 0 {
			break
		}
		if s.openCandidate(ctx, c) {
			slots--
		}
	}
}

// evaluateSymbol runs budget validation, regime classification and signal
// evaluation for one symbol. Rejections are recorded, not returned.
func (s *Supervisor) evaluateSymbol(ctx context.Context, symbol string) (candidate, bool) {
	bd := s.deps.Alloc.Allocate(
		s.sess.MaxBudgetUSD, s.sess.MaxConcurrentPositions,
		s.deps.Venue.MinCollateral(), s.deps.Leverage, symbol)
	if !bd.Valid {
		logger.Warn("budget rejected", zap.String("symbol", symbol), zap.String("reason", bd.Reason))
		s.recordRejection(symbol, "budget", []string{bd.Reason})
		return candidate{}, false
	}
	for _, w := range bd.Warnings {
		logger.Warn("budget warning", zap.String("symbol", symbol), zap.String("warning", w))
	}

	primary := s.deps.Source.Fetch(ctx, symbol, s.cfg.Trading.PrimaryInterval, s.cfg.Trading.CandleLimit)
	slow := s.deps.Source.Fetch(ctx, symbol, s.cfg.Trading.SlowInterval, s.cfg.Trading.CandleLimit)
	cls := regime.Classify(primary, slow)

	decision := s.deps.Eval.Evaluate(ctx, symbol, primary, signal.Context{
		Regime:           cls.Regime,
		RegimeConfidence: cls.Confidence,
		Leverage:         bd.Leverage,
	})
	if decision.Direction == model.DirectionNone {
		s.recordRejection(symbol, decision.Scenario, decision.RejectionReasons)
		return candidate{}, false
	}
	return candidate{symbol: symbol, decision: decision, budget: bd}, true
}

// openCandidate submits one open and registers the fill with the ledger.
// Entry price and size come from the actual fill, never the request.
func (s *Supervisor) openCandidate(ctx context.Context, c candidate) bool {
	isLong := c.decision.Direction == model.DirectionLong
	res := s.deps.Venue.OpenPosition(ctx, c.symbol,
		c.budget.PerPositionCollateral, c.budget.Leverage, isLong, s.sess.Credential)
	if !res.Success {
		logger.Warn("open failed",
			zap.String("symbol", c.symbol), zap.String("error", res.Error))
		return false
	}

	side := model.SideShort
	if isLong {
		side = model.SideLong
	}
	if err := s.deps.Ledger.RecordOpen(c.symbol, side, res.AvgFillPrice, res.FilledSize); err != nil {
		logger.Error("ledger open failed", zap.String("symbol", c.symbol), zap.Error(err))
		return false
	}

	tp := res.AvgFillPrice + c.decision.TakeProfitDistance
	sl := res.AvgFillPrice - c.decision.StopLossDistance
	if !isLong {
		tp = res.AvgFillPrice - c.decision.TakeProfitDistance
		sl = res.AvgFillPrice + c.decision.StopLossDistance
	}
	s.exits[c.symbol] = exitTargets{side: side, takeProfit: tp, stopLoss: sl}

	if trade, ok := s.deps.Ledger.OpenTrade(c.symbol); ok {
		s.notify(ctx, notifier.FormatTradeOpen(trade, c.budget.Leverage, c.decision.Confidence, c.decision.Scenario))
	}
	return true
}

func (s *Supervisor) recordRejection(symbol, scenario string, reasons []string) {
	if err := s.deps.Recorder.RecordRejection(symbol, scenario, reasons); err != nil {
		logger.Warn("persist rejection failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// notifyRetries is the delivery retry budget for session and trade
// messages; trading proceeds regardless of the outcome.
const notifyRetries = 3

func (s *Supervisor) notify(ctx context.Context, text string) {
	if err := s.deps.Notifier.SendWithRetry(ctx, text, notifyRetries); err != nil {
		logger.Warn("notification failed", zap.Error(err))
	}
}

// impliedPrice derives the current mark from a snapshot's entry price,
// size and unrealized PnL.
func impliedPrice(snap model.PositionSnapshot) float64 {
	if snap.Size == 0 {
		return 0
	}
	perUnit := snap.UnrealizedPnL / snap.Size
	if snap.Side == model.SideShort {
		return snap.EntryPrice - perUnit
	}
	return snap.EntryPrice + perUnit
}

// lastClosed fetches the most recent closed trade on the symbol.
func lastClosed(l *ledger.Ledger, symbol string) (model.TradeRecord, bool) {
	closed := l.ClosedTrades()
	for i := len(closed) - 1; i >= 0; i-- {
		if closed[i].Symbol == symbol {
			return closed[i], true
		}
	}
	return model.TradeRecord{}, false
}
