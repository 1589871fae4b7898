package registry

import (
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

// ApplyStatusClosed marks a conversation closed. If it was the selection,
// the selection is cleared and true is returned. Applying it again is a
// no-op.
func (r *Registry) ApplyStatusClosed(conv helpdesk.Conversation, closedBy *helpdesk.User) bool {
	if conv.ID == "" {
		return false
	}
	r.mu.Lock()
	changed := false
	if i := r.indexLocked(conv.ID); i >= 0 {
		c := &r.conversations[i]
		if !c.Status.Terminal() {
			c.Status = helpdesk.StatusClosed
			changed = true
		}
		if c.ClosedAt == nil && conv.ClosedAt != nil {
			t := *conv.ClosedAt
			c.ClosedAt = &t
			changed = true
		}
		by := closedBy
		if by == nil {
			by = conv.ClosedBy
		}
		if c.ClosedBy == nil && by != nil {
			u := *by
			c.ClosedBy = &u
			changed = true
		}
	}
	clearedSelection := r.selectedID == conv.ID
	if clearedSelection {
		r.selectedID = ""
		r.selected = nil
	}
	r.mu.Unlock()

	if changed || clearedSelection {
		r.changed()
	}
	return clearedSelection
}

// ApplyStaffAdded records an IT staff assignment: the conversation moves to
// in_progress unless already closed, and the staff member joins the
// participants once.
func (r *Registry) ApplyStaffAdded(conv helpdesk.Conversation, staff helpdesk.User) bool {
	r.mu.Lock()
	i := r.indexLocked(conv.ID)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	c := &r.conversations[i]
	changed := false
	if next := c.Status.Advance(helpdesk.StatusInProgress); next != c.Status {
		c.Status = next
		changed = true
	}
	if staff.ID != "" && !c.HasParticipant(staff.ID) {
		c.Participants = append(c.Participants, staff)
		changed = true
	}
	r.mu.Unlock()

	if changed {
		r.changed()
	}
	return changed
}

// ApplyNewTicket prepends a conversation unless it is already known.
func (r *Registry) ApplyNewTicket(conv helpdesk.Conversation) bool {
	if conv.ID == "" {
		return false
	}
	r.mu.Lock()
	if r.indexLocked(conv.ID) >= 0 {
		r.mu.Unlock()
		return false
	}
	if !conv.Status.Valid() {
		conv.Status = helpdesk.StatusOpen
	}
	r.conversations = append([]helpdesk.Conversation{conv.Clone()}, r.conversations...)
	r.pushed[conv.ID] = r.fetchGen
	r.mu.Unlock()

	r.changed()
	return true
}
