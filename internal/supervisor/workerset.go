package supervisor

import "slices"

// WorkerSet is the ordered set of worker PIDs owned by the master.
// It is not safe for concurrent use; only the supervisor loop touches it.
type WorkerSet struct {
	pids []int
}

// Add appends pid unless it is already present. It reports whether pid was added.
func (s *WorkerSet) Add(pid int) bool {
	if pid <= 0 || s.Contains(pid) {
		return false
	}
	s.pids = append(s.pids, pid)
	return true
}

// Remove deletes pid, keeping the order of the others. It reports whether pid was present.
func (s *WorkerSet) Remove(pid int) bool {
	i := slices.Index(s.pids, pid)
	if i < 0 {
		return false
	}
	s.pids = slices.Delete(s.pids, i, i+1)
	return true
}

// Contains reports whether pid is registered.
func (s *WorkerSet) Contains(pid int) bool {
	return slices.Contains(s.pids, pid)
}

// Len returns the number of registered workers.
func (s *WorkerSet) Len() int {
	return len(s.pids)
}

// PIDs returns a copy of the registered PIDs in insertion order.
func (s *WorkerSet) PIDs() []int {
	return slices.Clone(s.pids)
}

// Clear forgets every worker.
func (s *WorkerSet) Clear() {
	s.pids = nil
}
