package model

import "time"

// VenueKind selects the execution strategy. The choice is made once at
// session construction and never inferred from the credential's shape.
type VenueKind string

const (
	VenueOrderBook VenueKind = "orderbook"
	VenueExternal  VenueKind = "external"
)

// SessionConfig is the immutable configuration of one trading session.
type SessionConfig struct {
	MaxBudgetUSD           float64
	ProfitGoalUSD          float64
	MaxConcurrentPositions int
	Venue                  VenueKind
	Credential             string
}

// TerminalReason is why a session ended.
type TerminalReason string

const (
	ReasonProfitGoalReached TerminalReason = "profit_goal_reached"
	ReasonStopLossTriggered TerminalReason = "stop_loss_triggered"
	ReasonAllLiquidated     TerminalReason = "all_liquidated"
	ReasonUserStopped       TerminalReason = "user_stopped"
	ReasonMaxCyclesReached  TerminalReason = "max_cycles_reached"
	ReasonFatalError        TerminalReason = "fatal_error"
)

// SessionResult summarizes a finished session.
type SessionResult struct {
	ID        string
	Reason    TerminalReason
	CyclesRun int
	FinalPnL  float64
	StartedAt time.Time
	EndedAt   time.Time
}
