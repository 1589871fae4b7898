package registry

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

const ClosePrompt = "Are you sure you want to close this ticket?"

// CreateTicket opens a conversation and returns the server's copy. The
// collection is not touched; the new_ticket push or the next FetchAll
// brings it in.
func (r *Registry) CreateTicket(ctx context.Context, subject string) (helpdesk.Conversation, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return helpdesk.Conversation{}, ErrEmptySubject
	}
	conv, err := r.api.CreateConversation(ctx, subject)
	if err != nil {
		return helpdesk.Conversation{}, r.fail(ctx, err, "Failed to create ticket", "create ticket")
	}
	r.logger.Info().Str("conversation_id", conv.ID).Msg("ticket created")
	return conv, nil
}

// CloseTicket closes a conversation after confirmation. It returns false
// when the user declines. Local status is left alone until the
// ticket_closed push arrives.
func (r *Registry) CloseTicket(ctx context.Context, conversationID string, confirm Confirmer) (bool, error) {
	if conversationID == "" {
		return false, ErrMissingSelection
	}
	if !r.role().IsStaff() {
		return false, ErrForbidden
	}
	if confirm == nil {
		return false, ErrNotConfirmed
	}
	ok, err := confirm.Confirm(ctx, ClosePrompt)
	if err != nil {
		return false, errors.Wrap(err, "confirm close")
	}
	if !ok {
		return false, nil
	}
	if err := r.api.CloseConversation(ctx, conversationID); err != nil {
		return false, r.fail(ctx, err, "Failed to close ticket", "close ticket")
	}
	if r.banner != nil {
		r.banner.Success("Ticket closed successfully!")
	}
	return true, nil
}

// AssignStaff adds an IT staff member to a conversation. Admin only.
func (r *Registry) AssignStaff(ctx context.Context, conversationID, staffID string) error {
	if conversationID == "" || staffID == "" {
		if r.banner != nil {
			r.banner.Error("Please select both conversation and IT staff")
		}
		return ErrMissingSelection
	}
	if r.role() != helpdesk.RoleAdmin {
		return ErrForbidden
	}
	if err := r.api.AddITStaff(ctx, conversationID, staffID); err != nil {
		return r.fail(ctx, err, "Failed to assign IT staff", "assign staff")
	}
	if r.banner != nil {
		r.banner.Success("IT Staff assigned successfully!")
	}
	return nil
}

// ChangeUserRole updates a user's role and, once the server accepts it,
// the cached user and IT staff lists. Admin only.
func (r *Registry) ChangeUserRole(ctx context.Context, userID string, role helpdesk.Role) error {
	if userID == "" {
		return ErrMissingSelection
	}
	if !role.Valid() {
		return errors.Wrapf(helpdesk.ErrUnknownRole, "%q", role)
	}
	if r.role() != helpdesk.RoleAdmin {
		return ErrForbidden
	}
	if err := r.api.UpdateUserRole(ctx, userID, role); err != nil {
		return r.fail(ctx, err, "Failed to update role", "update role")
	}

	r.mu.Lock()
	var updated *helpdesk.User
	for i := range r.users {
		if r.users[i].ID == userID {
			r.users[i].Role = role
			u := r.users[i]
			updated = &u
		}
	}
	staff := r.staff[:0:0]
	for _, s := range r.staff {
		if s.ID != userID {
			staff = append(staff, s)
		}
	}
	if role == helpdesk.RoleITStaff && updated != nil {
		staff = append(staff, *updated)
	}
	r.staff = staff
	r.mu.Unlock()

	if r.banner != nil {
		r.banner.Success("User role updated!")
	}
	r.changed()
	return nil
}
