package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStopFile_AbsentMeansKeepRunning(t *testing.T) {
	s := &StopFile{Path: filepath.Join(t.TempDir(), "stop.signal")}
	if stopped, _ := s.Check(); stopped {
		t.Error("no file must mean no stop")
	}
}

func TestStopFile_PresenceStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.signal")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s := &StopFile{Path: path}
	stopped, at := s.Check()
	if !stopped {
		t.Fatal("expected stop")
	}
	if !at.IsZero() {
		t.Error("empty body carries no request time")
	}
}

func TestStopFile_ParsesRequestTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.signal")
	want := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	if err := os.WriteFile(path, []byte(want.Format(time.RFC3339)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &StopFile{Path: path}
	stopped, at := s.Check()
	if !stopped {
		t.Fatal("expected stop")
	}
	if !at.Equal(want) {
		t.Errorf("expected %v, got %v", want, at)
	}
}

func TestStopFile_GarbageBodyStillStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.signal")
	if err := os.WriteFile(path, []byte("please stop"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &StopFile{Path: path}
	stopped, at := s.Check()
	if !stopped {
		t.Error("an unparseable body must still stop")
	}
	if !at.IsZero() {
		t.Error("unparseable body carries no request time")
	}
}

func TestStopFile_ClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.signal")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	s := &StopFile{Path: path}
	s.Clear()
	if stopped, _ := s.Check(); stopped {
		t.Error("cleared stop file must not stop the next session")
	}
	// Clearing an already-absent file is a no-op.
	s.Clear()
}
