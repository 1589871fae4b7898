package helpdesk

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

func (s Status) rank() int {
	switch s {
	case StatusOpen:
		return 1
	case StatusInProgress:
		return 2
	case StatusClosed:
		return 3
	}
	return 0
}

func (s Status) Valid() bool { return s.rank() > 0 }

// Advance returns the further of s and next along open → in_progress → closed.
// Unknown values never win over a known one, so merges can only move forward.
func (s Status) Advance(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

func (s Status) Terminal() bool { return s == StatusClosed }

func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusClosed:
		return "Closed"
	}
	return string(s)
}
