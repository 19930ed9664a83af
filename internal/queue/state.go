package queue

// State is the process-wide registry of active and recently completed jobs.
// It is owned by the Controller, which serializes every mutation; nothing
// outside the controller touches it directly. In-memory only: a restart
// loses in-flight job state, and conversions are re-run from the input file.
type State struct {
	active       []*Job
	completed    []*Job
	completedCap int
}

// NewState creates an empty registry with a bounded completed history.
func NewState(completedCap int) *State {
	if completedCap <= 0 {
		completedCap = 20
	}
	return &State{completedCap: completedCap}
}

// Add appends a job to the active list in submission order.
func (s *State) Add(j *Job) {
	s.active = append(s.active, j)
}

// JobByID finds a job in the active list first, then the completed history.
func (s *State) JobByID(id string) *Job {
	for _, j := range s.active {
		if j.ID == id {
			return j
		}
	}
	for _, j := range s.completed {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// NextQueued returns the oldest QUEUED job, preserving FIFO dispatch order.
func (s *State) NextQueued() *Job {
	for _, j := range s.active {
		if j.Status() == StatusQueued {
			return j
		}
	}
	return nil
}

// MoveToCompleted removes a terminal job from the active list and appends
// it to the bounded completed history, evicting the oldest entry when the
// capacity is exceeded.
func (s *State) MoveToCompleted(j *Job) {
	for i, a := range s.active {
		if a == j {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}

	s.completed = append(s.completed, j)
	if len(s.completed) > s.completedCap {
		trim := len(s.completed) - s.completedCap
		s.completed = append([]*Job(nil), s.completed[trim:]...)
	}
}

// SetCompletedCapacity adjusts the history bound, evicting immediately if
// the new capacity is smaller.
func (s *State) SetCompletedCapacity(cap int) {
	if cap <= 0 {
		return
	}
	s.completedCap = cap
	if len(s.completed) > cap {
		trim := len(s.completed) - cap
		s.completed = append([]*Job(nil), s.completed[trim:]...)
	}
}

// OutputPathTaken reports whether any active job already targets path. Used
// at enqueue time so two concurrent jobs never write the same output.
func (s *State) OutputPathTaken(path string) bool {
	for _, j := range s.active {
		if j.OutputPath == path {
			return true
		}
	}
	return false
}

// ClearCompleted empties the completed history.
func (s *State) ClearCompleted() {
	s.completed = nil
}

func (s *State) Active() []*Job    { return s.active }
func (s *State) Completed() []*Job { return s.completed }
func (s *State) ActiveEmpty() bool { return len(s.active) == 0 }

// QueuedCount counts jobs still waiting for dispatch.
func (s *State) QueuedCount() int {
	n := 0
	for _, j := range s.active {
		if j.Status() == StatusQueued {
			n++
		}
	}
	return n
}

// ProcessingCount counts jobs currently running.
func (s *State) ProcessingCount() int {
	n := 0
	for _, j := range s.active {
		if j.Status() == StatusProcessing {
			n++
		}
	}
	return n
}

// Stats summarizes job counts by status across active and completed jobs.
func (s *State) Stats() map[string]int {
	stats := map[string]int{
		"total":      len(s.active) + len(s.completed),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
		"cancelled":  0,
	}
	count := func(j *Job) {
		switch j.Status() {
		case StatusQueued:
			stats["queued"]++
		case StatusProcessing:
			stats["processing"]++
		case StatusCompleted:
			stats["completed"]++
		case StatusFailed:
			stats["failed"]++
		case StatusCancelled:
			stats["cancelled"]++
		}
	}
	for _, j := range s.active {
		count(j)
	}
	for _, j := range s.completed {
		count(j)
	}
	return stats
}
