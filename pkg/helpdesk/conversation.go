package helpdesk

import "time"

// Conversation is one support ticket thread. Participants[0] is the creator.
type Conversation struct {
	ID           string     `json:"_id"`
	Subject      string     `json:"subject"`
	Status       Status     `json:"status"`
	Participants []User     `json:"participants"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedBy     *User      `json:"closed_by,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (c Conversation) Creator() (User, bool) {
	if len(c.Participants) == 0 {
		return User{}, false
	}
	return c.Participants[0], true
}

func (c Conversation) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Participants != nil {
		out.Participants = append([]User(nil), c.Participants...)
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	if c.ClosedBy != nil {
		u := *c.ClosedBy
		out.ClosedBy = &u
	}
	return out
}
