package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"PerpPilot/internal/ledger"
	"PerpPilot/internal/model"
)

// FormatSessionStart formats the session kickoff message.
func FormatSessionStart(sessionID string, cfg model.SessionConfig) string {
	var b strings.Builder
	b.WriteString("🚀 <b>PerpPilot session started</b>\n\n")
	b.WriteString(fmt.Sprintf("Session: <code>%s</code>\n", sessionID))
	b.WriteString(fmt.Sprintf("Venue: %s\n", cfg.Venue))
	b.WriteString(fmt.Sprintf("Budget: $%s\n", humanize.CommafWithDigits(cfg.MaxBudgetUSD, 2)))
	b.WriteString(fmt.Sprintf("Profit goal: $%s\n", humanize.CommafWithDigits(cfg.ProfitGoalUSD, 2)))
	b.WriteString(fmt.Sprintf("Max positions: %d\n", cfg.MaxConcurrentPositions))
	return b.String()
}

// FormatSessionEnd formats the session wrap-up message.
func FormatSessionEnd(result model.SessionResult, stats ledger.Stats) string {
	var b strings.Builder
	b.WriteString("🏁 <b>Session ended</b>\n\n")
	b.WriteString(fmt.Sprintf("Session: <code>%s</code>\n", result.ID))
	b.WriteString(fmt.Sprintf("Reason: %s\n", result.Reason))
	b.WriteString(fmt.Sprintf("Cycles: %d\n", result.CyclesRun))
	b.WriteString(fmt.Sprintf("Duration: %s\n", humanize.RelTime(result.StartedAt, result.EndedAt, "", "")))
	b.WriteString(fmt.Sprintf("Final PnL: %s\n\n", formatPnL(result.FinalPnL)))
	b.WriteString(formatStats(stats))
	return b.String()
}

// FormatTradeOpen formats a position-open notification.
func FormatTradeOpen(trade model.TradeRecord, leverage int, confidence float64, scenario string) string {
	arrow := "📈"
	if trade.Side == model.SideShort {
		arrow = "📉"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s %s opened</b>\n\n", arrow, trade.Symbol, trade.Side))
	b.WriteString(fmt.Sprintf("Entry: $%s\n", humanize.CommafWithDigits(trade.EntryPrice, 2)))
	b.WriteString(fmt.Sprintf("Size: %v | Leverage: %dx\n", trade.PositionSize, leverage))
	b.WriteString(fmt.Sprintf("Scenario: %s (confidence %.0f%%)\n", scenario, confidence*100))
	return b.String()
}

// FormatTradeClose formats a position-close notification.
func FormatTradeClose(trade model.TradeRecord) string {
	emoji := "✅"
	if trade.PnL <= 0 {
		emoji = "❌"
	}
	if trade.Status == model.TradeLiquidated {
		emoji = "💥"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s closed</b> (%s)\n\n", emoji, trade.Symbol, trade.Status))
	b.WriteString(fmt.Sprintf("Exit: $%s\n", humanize.CommafWithDigits(trade.ExitPrice, 2)))
	b.WriteString(fmt.Sprintf("PnL: %s\n", formatPnL(trade.PnL)))
	return b.String()
}

// FormatDailyRecap formats the scheduled daily performance recap.
func FormatDailyRecap(stats ledger.Stats, openSymbols []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Daily recap</b> | %s\n\n", time.Now().Format("2006-01-02")))
	b.WriteString(formatStats(stats))
	if len(openSymbols) > 0 {
		b.WriteString(fmt.Sprintf("\nOpen positions: %s\n", strings.Join(openSymbols, ", ")))
	} else {
		b.WriteString("\nNo open positions\n")
	}
	return b.String()
}

func formatStats(stats ledger.Stats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Trades: %d (W %d / L %d, %.0f%% win rate)\n",
		stats.TotalTrades, stats.Wins, stats.Losses, stats.WinRate*100))
	b.WriteString(fmt.Sprintf("Total PnL: %s\n", formatPnL(stats.TotalPnL)))
	if stats.TotalTrades > 0 {
		b.WriteString(fmt.Sprintf("Avg PnL: %s | Best: %s | Worst: %s\n",
			formatPnL(stats.AvgPnL), formatPnL(stats.LargestWin), formatPnL(stats.LargestLoss)))
	}
	return b.String()
}

func formatPnL(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%s", humanize.CommafWithDigits(v, 2))
	}
	return fmt.Sprintf("-$%s", humanize.CommafWithDigits(-v, 2))
}
