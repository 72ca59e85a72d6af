package budget

// LeverageTier caps leverage for notional sizes up to MaxNotionalUSD.
// Tiers must be ordered by ascending MaxNotionalUSD.
type LeverageTier struct {
	MaxNotionalUSD float64
	MaxLeverage    int
}

// InstrumentLeverage describes the leverage limits of one instrument:
// either a flat maximum or notional-size tiers.
type InstrumentLeverage struct {
	FlatMax int
	Tiers   []LeverageTier
}

// LeverageTable maps instrument symbols to their leverage limits.
type LeverageTable map[string]InstrumentLeverage

// Resolve returns the maximum allowable leverage for the instrument at the
// candidate leverage and collateral. When tiers are defined, the tier
// matching the computed notional (collateral x candidate) applies;
// otherwise the flat maximum. The result is clamped so it never drops
// below minLeverage, a global safety floor.
func (t LeverageTable) Resolve(symbol string, collateral float64, candidate, minLeverage int) int {
	resolved := candidate

	if limits, ok := t[symbol]; ok {
		max := limits.FlatMax
		if len(limits.Tiers) > 0 {
			notional := collateral * float64(candidate)
			max = limits.Tiers[len(limits.Tiers)-1].MaxLeverage
			for _, tier := range limits.Tiers {
				if notional <= tier.MaxNotionalUSD {
					max = tier.MaxLeverage
					break
				}
			}
		}
		if max > 0 && resolved > max {
			resolved = max
		}
	}

	if resolved < minLeverage {
		resolved = minLeverage
	}
	return resolved
}

// DefaultLeverageTable holds conservative limits for the instruments the
// engine trades by default. Majors allow more leverage on small notionals.
var DefaultLeverageTable = LeverageTable{
	"BTC": {Tiers: []LeverageTier{
		{MaxNotionalUSD: 50000, MaxLeverage: 50},
		{MaxNotionalUSD: 250000, MaxLeverage: 25},
		{MaxNotionalUSD: 1000000, MaxLeverage: 10},
	}},
	"ETH": {Tiers: []LeverageTier{
		{MaxNotionalUSD: 50000, MaxLeverage: 50},
		{MaxNotionalUSD: 250000, MaxLeverage: 25},
		{MaxNotionalUSD: 1000000, MaxLeverage: 10},
	}},
	"SOL":  {FlatMax: 20},
	"AVAX": {FlatMax: 20},
	"LINK": {FlatMax: 20},
	"DOGE": {FlatMax: 10},
	"XRP":  {FlatMax: 20},
}
