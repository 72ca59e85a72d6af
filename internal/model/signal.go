package model

// Direction is the trade direction a signal resolves to.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// Regime is a coarse label for the prevailing market trend.
type Regime string

const (
	RegimeBull    Regime = "bull"
	RegimeBear    Regime = "bear"
	RegimeNeutral Regime = "neutral"
)

// ScoreComponents carries every numeric input the signal engine evaluated,
// so rejected signals can be diagnosed without re-running the engine.
type ScoreComponents struct {
	RSI          float64
	RSISlope     float64
	MACDHist     float64
	MACDHistPrev float64
	EMASlope     float64
	ADX          float64
	ADXSlope     float64
	ATRPct       float64
	VolumeRatio  float64
	Divergence   float64
	Outlook      float64
}

// RuleResult is one evaluated predicate within a scenario.
type RuleResult struct {
	Name     string
	Value    float64
	Pass     bool
	Expected string
}

// SignalDecision is the outcome of one signal evaluation. It is produced
// fresh each cycle and never persisted beyond it. When Direction is
// DirectionNone, RejectionReasons lists every failed predicate from every
// scenario so operators see the full picture when tuning thresholds.
type SignalDecision struct {
	Symbol             string
	Direction          Direction
	Confidence         float64
	Scenario           string
	Scores             ScoreComponents
	TakeProfitDistance float64
	StopLossDistance   float64
	RiskReward         float64
	RejectionReasons   []string
}
