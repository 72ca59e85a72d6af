package model

import "time"

// Side is the position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradeStatus is the lifecycle status of a trade record.
type TradeStatus string

const (
	TradeOpen         TradeStatus = "OPEN"
	TradeClosedTP     TradeStatus = "CLOSED_TP"
	TradeClosedSL     TradeStatus = "CLOSED_SL"
	TradeLiquidated   TradeStatus = "LIQUIDATED"
	TradeClosedManual TradeStatus = "CLOSED_MANUAL"
)

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseLiquidation CloseReason = "liquidation"
	CloseManual      CloseReason = "manual"
	CloseSessionEnd  CloseReason = "session_end"
)

// StatusForReason maps a close reason to the terminal trade status.
func StatusForReason(reason CloseReason) TradeStatus {
	switch reason {
	case CloseTakeProfit:
		return TradeClosedTP
	case CloseStopLoss:
		return TradeClosedSL
	case CloseLiquidation:
		return TradeLiquidated
	default:
		return TradeClosedManual
	}
}

// TradeRecord tracks one position from confirmed fill to close. Records are
// created only on a confirmed fill, mutated only by the ledger, and never
// deleted; closed records are appended to history.
type TradeRecord struct {
	Symbol       string
	Side         Side
	EntryTime    time.Time
	EntryPrice   float64
	PositionSize float64
	Status       TradeStatus
	ExitTime     time.Time
	ExitPrice    float64
	PnL          float64
	Reason       CloseReason
}

// PositionSnapshot is a venue-reported view of one open position.
type PositionSnapshot struct {
	Symbol        string
	Side          Side
	EntryPrice    float64
	Size          float64
	UnrealizedPnL float64
}
