package registry

import "github.com/go-go-golems/helpdesk/pkg/helpdesk"

type Stats struct {
	Total      int
	Open       int
	InProgress int
	Closed     int
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Total: len(r.conversations)}
	for _, c := range r.conversations {
		switch c.Status {
		case helpdesk.StatusOpen:
			s.Open++
		case helpdesk.StatusInProgress:
			s.InProgress++
		case helpdesk.StatusClosed:
			s.Closed++
		}
	}
	return s
}

// Filter returns conversations with the given status, or all of them when
// status is empty.
func (r *Registry) Filter(status helpdesk.Status) []helpdesk.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []helpdesk.Conversation
	for _, c := range r.conversations {
		if status == "" || c.Status == status {
			out = append(out, c.Clone())
		}
	}
	return out
}
