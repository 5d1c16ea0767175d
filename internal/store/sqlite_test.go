package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "counters.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCounterLifecycle(t *testing.T) {
	s := newTestStore(t)

	count, err := s.GetCount("s1")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 for unknown session, got %d", count)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementCount("s1"); err != nil {
			t.Fatalf("IncrementCount failed: %v", err)
		}
	}
	if count, _ = s.GetCount("s1"); count != 3 {
		t.Errorf("Expected 3, got %d", count)
	}

	if err := s.ResetCount("s1"); err != nil {
		t.Fatalf("ResetCount failed: %v", err)
	}
	if count, _ = s.GetCount("s1"); count != 0 {
		t.Errorf("Expected 0 after reset, got %d", count)
	}
}

func TestCountersAreIndependentPerSession(t *testing.T) {
	s := newTestStore(t)

	s.IncrementCount("a")
	s.IncrementCount("a")
	s.IncrementCount("b")

	if count, _ := s.GetCount("a"); count != 2 {
		t.Errorf("Expected 2 for session a, got %d", count)
	}
	if count, _ := s.GetCount("b"); count != 1 {
		t.Errorf("Expected 1 for session b, got %d", count)
	}
}

func TestReconcileCountOnlyForcesDown(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.IncrementCount("s1")
	}

	// History longer than count: no change.
	if err := s.ReconcileCount("s1", 10); err != nil {
		t.Fatalf("ReconcileCount failed: %v", err)
	}
	if count, _ := s.GetCount("s1"); count != 5 {
		t.Errorf("Expected count unchanged at 5, got %d", count)
	}

	// History shorter than count: forced down.
	if err := s.ReconcileCount("s1", 2); err != nil {
		t.Fatalf("ReconcileCount failed: %v", err)
	}
	if count, _ := s.GetCount("s1"); count != 2 {
		t.Errorf("Expected count forced to 2, got %d", count)
	}
}

func TestSummaryTimes(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.GetLastSummaryTime("s1")
	if err != nil {
		t.Fatalf("GetLastSummaryTime failed: %v", err)
	}
	if found {
		t.Errorf("Expected no timestamp for unknown session")
	}

	if err := s.SetLastSummaryTime("s1", 1234.5); err != nil {
		t.Fatalf("SetLastSummaryTime failed: %v", err)
	}
	ts, found, err := s.GetLastSummaryTime("s1")
	if err != nil {
		t.Fatalf("GetLastSummaryTime failed: %v", err)
	}
	if !found || ts != 1234.5 {
		t.Errorf("Expected 1234.5, got %v (found=%v)", ts, found)
	}

	// Upsert overwrites.
	s.SetLastSummaryTime("s1", 2000)
	if ts, _, _ = s.GetLastSummaryTime("s1"); ts != 2000 {
		t.Errorf("Expected 2000 after overwrite, got %v", ts)
	}
}

func TestCountersSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counters.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s.IncrementCount("s1")
	s.IncrementCount("s1")
	s.SetLastSummaryTime("s1", 42)
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	if count, _ := s2.GetCount("s1"); count != 2 {
		t.Errorf("Expected persisted count 2, got %d", count)
	}
	if ts, found, _ := s2.GetLastSummaryTime("s1"); !found || ts != 42 {
		t.Errorf("Expected persisted timestamp 42, got %v (found=%v)", ts, found)
	}
}
