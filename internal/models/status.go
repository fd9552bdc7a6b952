package models

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// statusEdges is the full job lifecycle graph. A status absent from the map
// is terminal. No edge re-enters a non-terminal status once left.
var statusEdges = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected},
	StatusAccepted:   {StatusArrived, StatusCancelled},
	StatusArrived:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ActiveStatuses are the non-terminal statuses. A customer may hold at most
// one job in any of these at a time.
var ActiveStatuses = []Status{StatusPending, StatusAccepted, StatusArrived, StatusInProgress}

// BusyStatuses are the statuses during which a technician is considered
// occupied; a new booking against an occupied technician is queued.
var BusyStatuses = []Status{StatusAccepted, StatusArrived, StatusInProgress}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusArrived,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether target is a direct successor of s in the
// lifecycle graph.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range statusEdges[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(statusEdges[s]) == 0
}

// Active reports whether a job in this status still has lifecycle ahead of
// it.
func (s Status) Active() bool {
	return !s.Terminal()
}
