package session

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"PerpPilot/pkg/logger"
)

// StopFile is the user's out-of-band stop request: the presence of the
// file at Path asks the engine to stop at the next cycle boundary. The
// file body may carry an RFC 3339 timestamp of when the stop was
// requested; an empty or unparseable body still stops.
type StopFile struct {
	Path string
}

// Check reports whether a stop has been requested, and the requested-at
// time when the file body carries one.
func (s *StopFile) Check() (bool, time.Time) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return false, time.Time{}
	}
	requestedAt := time.Time{}
	if body := strings.TrimSpace(string(data)); body != "" {
		if t, err := time.Parse(time.RFC3339, body); err == nil {
			requestedAt = t
		}
	}
	return true, requestedAt
}

// Clear removes the stop file once the request has been honored, so the
// next session does not stop immediately.
func (s *StopFile) Clear() {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove stop file failed", zap.String("path", s.Path), zap.Error(err))
	}
}
