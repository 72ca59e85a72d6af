package signal

import (
	"fmt"

	"PerpPilot/internal/config"
	"PerpPilot/internal/indicator"
	"PerpPilot/internal/model"
)

// scenario is one named rule-set. Scenarios are data, not control flow:
// the engine evaluates them generically in priority order, so adding a
// scenario is a table change.
type scenario struct {
	name      string
	direction model.Direction
	rules     []model.RuleResult
}

func (s scenario) passes() bool {
	for _, r := range s.rules {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (s scenario) failures() []string {
	var out []string
	for _, r := range s.rules {
		if !r.Pass {
			out = append(out, fmt.Sprintf("%s: %s=%.3f (expected %s)", s.name, r.Name, r.Value, r.Expected))
		}
	}
	return out
}

func rule(name string, value float64, pass bool, expected string) model.RuleResult {
	return model.RuleResult{Name: name, Value: value, Pass: pass, Expected: expected}
}

// buildScenarios constructs the six rule-sets for one evaluation. The
// outlook gate of each scenario is expressed as an ordinary rule so a
// failed gate shows up in the rejection diagnostics like any predicate.
// atrLimit is the leverage-adjusted volatility ceiling.
func buildScenarios(s *indicator.Snapshot, outlook float64, cfg config.SignalConfig, atrLimit float64) []scenario {
	atrBounded := rule("atr_pct", s.ATRPct, s.ATRPct > 0 && s.ATRPct <= atrLimit,
		fmt.Sprintf("0 < atr%% <= %.1f", atrLimit))
	volumeOK := rule("volume_ratio", s.VolumeRatio, s.VolumeRatio >= cfg.VolumeRatioMin,
		fmt.Sprintf(">= %.2f", cfg.VolumeRatioMin))

	return []scenario{
		{
			name:      "aligned-long",
			direction: model.DirectionLong,
			rules: []model.RuleResult{
				rule("outlook", outlook, outlook >= cfg.OutlookLongThreshold,
					fmt.Sprintf(">= %.2f", cfg.OutlookLongThreshold)),
				rule("rsi", s.RSI, s.RSI > 40 && s.RSI < cfg.RSIOverbought,
					fmt.Sprintf("40 < rsi < %.0f", cfg.RSIOverbought)),
				rule("macd_hist", s.MACDHist, s.MACDHist > 0 && s.MACDHist > s.MACDHistPrev,
					"> 0 and rising"),
				rule("ema_slope", s.EMASlope, s.EMASlope > 0, "> 0"),
				rule("adx", s.ADX, s.ADX >= cfg.ADXTrending, fmt.Sprintf(">= %.0f", cfg.ADXTrending)),
				atrBounded,
				volumeOK,
			},
		},
		{
			name:      "aligned-short",
			direction: model.DirectionShort,
			rules: []model.RuleResult{
				rule("outlook", outlook, outlook <= cfg.OutlookShortThreshold,
					fmt.Sprintf("<= %.2f", cfg.OutlookShortThreshold)),
				rule("rsi", s.RSI, s.RSI < 60 && s.RSI > 100-cfg.RSIOverbought,
					fmt.Sprintf("%.0f < rsi < 60", 100-cfg.RSIOverbought)),
				rule("macd_hist", s.MACDHist, s.MACDHist < 0 && s.MACDHist < s.MACDHistPrev,
					"< 0 and falling"),
				rule("ema_slope", s.EMASlope, s.EMASlope < 0, "< 0"),
				rule("adx", s.ADX, s.ADX >= cfg.ADXTrending, fmt.Sprintf(">= %.0f", cfg.ADXTrending)),
				atrBounded,
				volumeOK,
			},
		},
		{
			name:      "overextended-reversal-long",
			direction: model.DirectionLong,
			rules: []model.RuleResult{
				// Guard against fighting a strongly bearish trend.
				rule("outlook", outlook, outlook > -cfg.OutlookExtreme,
					fmt.Sprintf("> %.2f", -cfg.OutlookExtreme)),
				rule("rsi", s.RSI, s.RSI <= cfg.RSIOversold, fmt.Sprintf("<= %.0f", cfg.RSIOversold)),
				rule("rsi_slope", s.RSISlope, s.RSISlope > 0, "> 0"),
				rule("divergence", s.Divergence, s.Divergence >= cfg.DivergenceMin,
					fmt.Sprintf(">= %.2f", cfg.DivergenceMin)),
				atrBounded,
				volumeOK,
			},
		},
		{
			name:      "overextended-reversal-short",
			direction: model.DirectionShort,
			rules: []model.RuleResult{
				rule("outlook", outlook, outlook < cfg.OutlookExtreme,
					fmt.Sprintf("< %.2f", cfg.OutlookExtreme)),
				rule("rsi", s.RSI, s.RSI >= cfg.RSIOverbought, fmt.Sprintf(">= %.0f", cfg.RSIOverbought)),
				rule("rsi_slope", s.RSISlope, s.RSISlope < 0, "< 0"),
				rule("divergence", s.Divergence, s.Divergence <= -cfg.DivergenceMin,
					fmt.Sprintf("<= %.2f", -cfg.DivergenceMin)),
				atrBounded,
				volumeOK,
			},
		},
		{
			name:      "counter-trend-long",
			direction: model.DirectionLong,
			rules: []model.RuleResult{
				rule("outlook", outlook, outlook > 0, "> 0 (long bias)"),
				rule("rsi", s.RSI, s.RSI < 45, "< 45 (pullback)"),
				rule("macd_hist", s.MACDHist, s.MACDHist > s.MACDHistPrev, "rising"),
				rule("ema_slope", s.EMASlope, s.EMASlope <= 0, "<= 0 (pullback)"),
				rule("adx", s.ADX, s.ADX >= cfg.ADXFloor, fmt.Sprintf(">= %.0f", cfg.ADXFloor)),
				atrBounded,
			},
		},
		{
			name:      "counter-trend-short",
			direction: model.DirectionShort,
			rules: []model.RuleResult{
				rule("outlook", outlook, outlook < 0, "< 0 (short bias)"),
				rule("rsi", s.RSI, s.RSI > 55, "> 55 (bounce)"),
				rule("macd_hist", s.MACDHist, s.MACDHist < s.MACDHistPrev, "falling"),
				rule("ema_slope", s.EMASlope, s.EMASlope >= 0, ">= 0 (bounce)"),
				rule("adx", s.ADX, s.ADX >= cfg.ADXFloor, fmt.Sprintf(">= %.0f", cfg.ADXFloor)),
				atrBounded,
			},
		},
	}
}
