package budget

import (
	"fmt"

	"PerpPilot/internal/model"
)

// Allocator converts total session capital and a concurrency limit into a
// validated per-position collateral amount plus a resolved leverage. All
// validation happens here, before any capital-moving call: a venue-side
// rejection after a transfer can leave value stranded.
type Allocator struct {
	GlobalMinBudgetUSD float64
	GlobalMaxBudgetUSD float64
	MinPerPositionUSD  float64 // venue-agnostic floor
	TargetLeverage     int
	MinLeverage        int
}

// Allocate computes the per-position collateral for the session.
// venueMinCollateral is the active venue's own minimum, which differs
// meaningfully between venues and is never conflated with the
// venue-agnostic floor.
func (a *Allocator) Allocate(totalBudget float64, maxPositions int, venueMinCollateral float64, table LeverageTable, symbol string) model.BudgetDecision {
	if maxPositions <= 0 {
		return model.BudgetDecision{Valid: false, Reason: "max positions must be positive"}
	}
	if totalBudget < a.GlobalMinBudgetUSD || totalBudget > a.GlobalMaxBudgetUSD {
		return model.BudgetDecision{Valid: false, Reason: fmt.Sprintf(
			"total budget $%.2f outside allowed range [$%.2f, $%.2f]",
			totalBudget, a.GlobalMinBudgetUSD, a.GlobalMaxBudgetUSD)}
	}

	perPosition := totalBudget / float64(maxPositions)
	if perPosition < a.MinPerPositionUSD {
		perPosition = a.MinPerPositionUSD
	}
	if perPosition > totalBudget {
		perPosition = totalBudget
	}

	if perPosition < venueMinCollateral {
		shortfall := venueMinCollateral - perPosition
		suggestion := fmt.Sprintf("increase total budget to at least $%.2f",
			venueMinCollateral*float64(maxPositions))
		if feasible := int(totalBudget / venueMinCollateral); feasible >= 1 {
			suggestion = fmt.Sprintf("reduce max positions to %d or %s", feasible, suggestion)
		}
		return model.BudgetDecision{Valid: false, Reason: fmt.Sprintf(
			"per-position collateral $%.2f is $%.2f below the venue minimum $%.2f; %s",
			perPosition, shortfall, venueMinCollateral, suggestion)}
	}

	decision := model.BudgetDecision{
		PerPositionCollateral: perPosition,
		Leverage:              table.Resolve(symbol, perPosition, a.TargetLeverage, a.MinLeverage),
		Valid:                 true,
	}

	// Non-fatal advisories; never block execution.
	if perPosition < venueMinCollateral*1.2 {
		decision.Warnings = append(decision.Warnings, fmt.Sprintf(
			"collateral $%.2f is within 20%% of the venue minimum $%.2f", perPosition, venueMinCollateral))
	}
	if perPosition > a.GlobalMaxBudgetUSD/10 {
		decision.Warnings = append(decision.Warnings, fmt.Sprintf(
			"collateral $%.2f is unusually large for a single position", perPosition))
	}
	return decision
}
