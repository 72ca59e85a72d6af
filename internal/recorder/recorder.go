package recorder

import (
	"PerpPilot/internal/model"
)

// Recorder persists trade history, session outcomes and signal rejections.
type Recorder interface {
	RecordTrade(trade model.TradeRecord) error
	RecordSession(result model.SessionResult) error
	RecordRejection(symbol, scenario string, reasons []string) error
	Close() error
}

// NoopRecorder discards everything. Used when no database is configured or
// the database fails to open, so the engine keeps trading without history.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that drops all records.
func NewNoopRecorder() NoopRecorder { return NoopRecorder{} }

func (NoopRecorder) RecordTrade(model.TradeRecord) error            { return nil }
func (NoopRecorder) RecordSession(model.SessionResult) error        { return nil }
func (NoopRecorder) RecordRejection(string, string, []string) error { return nil }
func (NoopRecorder) Close() error                                   { return nil }
