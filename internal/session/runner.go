package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"PerpPilot/internal/model"
	"PerpPilot/pkg/logger"
)

// Runner wraps the session loop in a restart policy: a finished session is
// replaced by a fresh one (clean supervisor state, new session ID) up to a
// restart cap. A user stop is final and never restarted. A fatal error
// earns a longer pause than an ordinary terminal condition.
type Runner struct {
	MaxRestarts  int
	RestartDelay time.Duration
	FatalDelay   time.Duration

	// NewSession builds a fresh Supervisor; it is called once per run so
	// no state leaks between sessions.
	NewSession func() *Supervisor
}

// Run drives sessions until a user stop, context cancellation or the
// restart cap, returning every session result in order.
func (r *Runner) Run(ctx context.Context) []model.SessionResult {
	var results []model.SessionResult
	restarts := 0

	for {
		sup := r.NewSession()
		res := sup.Run(ctx)
		results = append(results, res)

		logger.Info("session finished",
			zap.String("session", res.ID),
			zap.String("reason", string(res.Reason)),
			zap.Int("cycles", res.CyclesRun),
			zap.Float64("final_pnl", res.FinalPnL))

		if res.Reason == model.ReasonUserStopped {
			logger.Info("user stop honored, not restarting")
			return results
		}
		if ctx.Err() != nil {
			return results
		}
		if restarts >= r.MaxRestarts {
			logger.Warn("restart cap reached, halting", zap.Int("max_restarts", r.MaxRestarts))
			return results
		}
		restarts++

		delay := r.RestartDelay
		if res.Reason == model.ReasonFatalError {
			delay = r.FatalDelay
		}
		logger.Info("restarting session",
			zap.Int("restart", restarts), zap.Int("max", r.MaxRestarts),
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return results
		case <-time.After(delay):
		}
	}
}
