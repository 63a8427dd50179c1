package supervisor

import (
	"slices"
	"testing"
)

func TestWorkerSet(t *testing.T) {
	var s WorkerSet

	for _, pid := range []int{10, 20, 30} {
		if !s.Add(pid) {
			t.Fatalf("Add(%d) = false", pid)
		}
	}

	if s.Add(20) {
		t.Error("duplicate Add should be rejected")
	}
	if s.Add(0) || s.Add(-5) {
		t.Error("non-positive pids should be rejected")
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	if !s.Remove(20) {
		t.Error("Remove(20) = false")
	}
	if s.Remove(20) {
		t.Error("second Remove(20) should report false")
	}
	if got := s.PIDs(); !slices.Equal(got, []int{10, 30}) {
		t.Errorf("PIDs() = %v, want [10 30]", got)
	}

	pids := s.PIDs()
	pids[0] = 999
	if !s.Contains(10) {
		t.Error("PIDs must return a copy")
	}

	s.Clear()
	if s.Len() != 0 || s.Contains(10) {
		t.Error("Clear left entries behind")
	}
}
