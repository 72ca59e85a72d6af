package model

// BudgetDecision is the result of allocating session capital to a single
// position. When Valid is true PerPositionCollateral is always at or above
// the active venue's minimum collateral. Warnings are advisory and never
// block execution.
type BudgetDecision struct {
	PerPositionCollateral float64
	Leverage              int
	Valid                 bool
	Reason                string
	Warnings              []string
}
