package eventrouter

import (
	"fmt"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/session"
)

const previewRunes = 50

func preview(m helpdesk.Message) string {
	if m.Body == "" && m.HasAttachment() {
		return "[image]"
	}
	r := []rune(m.Body)
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "..."
	}
	return m.Body
}

func nameOr(u *helpdesk.User, fallback string) string {
	if u == nil || (u.Name == "" && u.ID == "") {
		return fallback
	}
	return u.DisplayName()
}

// NewMessageNotification announces messages sent by someone else.
func NewMessageNotification(self session.Identity, m helpdesk.Message) (notify.Notification, bool) {
	if m.Sender.ID != "" && m.Sender.ID == self.UserID {
		return notify.Notification{}, false
	}
	return notify.Notification{
		Level:          notify.LevelMessage,
		Title:          "New message from " + m.Sender.DisplayName(),
		ConversationID: m.ConversationID,
		Description:    preview(m),
		Duration:       5 * time.Second,
	}, true
}

// TicketClosedNotification tells the ticket creator (role user) and IT
// staff that a ticket was closed.
func TicketClosedNotification(self session.Identity, p TicketClosedPayload) (notify.Notification, bool) {
	subject := p.Conversation.Subject
	switch self.Role {
	case helpdesk.RoleUser:
		creator, ok := p.Conversation.Creator()
		if !ok || creator.ID != self.UserID {
			return notify.Notification{}, false
		}
		return notify.Notification{
			Level:          notify.LevelSuccess,
			Title:          "Ticket Closed",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("Your ticket %q has been closed by %s", subject, nameOr(p.ClosedBy, "IT Staff")),
			Duration:       6 * time.Second,
		}, true
	case helpdesk.RoleITStaff:
		return notify.Notification{
			Level:          notify.LevelInfo,
			Title:          "Ticket Closed",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("%q has been closed", subject),
			Duration:       5 * time.Second,
		}, true
	}
	return notify.Notification{}, false
}

// ITStaffAddedNotification tells admins about assignments and the assignee
// about their own assignment.
func ITStaffAddedNotification(self session.Identity, p ITStaffAddedPayload) (notify.Notification, bool) {
	subject := p.Conversation.Subject
	switch self.Role {
	case helpdesk.RoleAdmin:
		return notify.Notification{
			Level:          notify.LevelInfo,
			Title:          "IT Staff Assigned",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("%s assigned to %q", p.ITStaff.DisplayName(), subject),
			Duration:       5 * time.Second,
		}, true
	case helpdesk.RoleITStaff:
		if p.ITStaff.ID == "" || p.ITStaff.ID != self.UserID {
			return notify.Notification{}, false
		}
		return notify.Notification{
			Level:          notify.LevelSuccess,
			Title:          "You Are Assigned",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("You have been assigned to %q", subject),
			Duration:       6 * time.Second,
		}, true
	}
	return notify.Notification{}, false
}

// NewTicketNotification alerts admins and IT staff to new tickets.
func NewTicketNotification(self session.Identity, p NewTicketPayload) (notify.Notification, bool) {
	subject := p.Conversation.Subject
	switch self.Role {
	case helpdesk.RoleAdmin:
		by := nameOr(p.CreatedBy, "")
		if by == "" {
			if c, ok := p.Conversation.Creator(); ok {
				by = c.DisplayName()
			} else {
				by = "Unknown"
			}
		}
		return notify.Notification{
			Level:          notify.LevelWarning,
			Title:          "New Ticket Created",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("%q by %s", subject, by),
			Duration:       6 * time.Second,
		}, true
	case helpdesk.RoleITStaff:
		return notify.Notification{
			Level:          notify.LevelInfo,
			Title:          "New Ticket Available",
			ConversationID: p.Conversation.ID,
			Description:    fmt.Sprintf("%q needs attention", subject),
			Duration:       6 * time.Second,
		}, true
	}
	return notify.Notification{}, false
}
