package registry

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/helpdesk/pkg/api"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

// FetchAll reloads conversations, plus users and IT staff for admins.
// A response that was overtaken by a newer FetchAll is discarded.
func (r *Registry) FetchAll(ctx context.Context) error {
	role := r.role()

	r.mu.Lock()
	r.fetchGen++
	gen := r.fetchGen
	r.mu.Unlock()

	var (
		convs []helpdesk.Conversation
		users []helpdesk.User
		staff []helpdesk.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		convs, err = r.api.ListConversations(gctx)
		return err
	})
	if role == helpdesk.RoleAdmin {
		g.Go(func() error {
			var err error
			users, err = r.api.ListUsers(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			staff, err = r.api.ListUsersByRole(gctx, helpdesk.RoleITStaff)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		// A 401 ends the session whichever fetch saw it.
		if !api.IsUnauthorized(err) && r.fetchSuperseded(gen) {
			r.logger.Debug().Err(err).Uint64("generation", gen).Msg("discarding failure of stale snapshot")
			return nil
		}
		return r.fail(ctx, err, "Failed to load data", "fetch all")
	}

	r.mu.Lock()
	if gen != r.fetchGen {
		r.mu.Unlock()
		r.logger.Debug().Uint64("generation", gen).Msg("discarding stale snapshot")
		return nil
	}
	r.conversations = r.mergeSnapshotLocked(convs, gen)
	r.users, r.staff = users, staff
	r.mu.Unlock()

	r.logger.Debug().Int("conversations", len(convs)).Int("users", len(users)).Msg("snapshot applied")
	r.changed()
	return nil
}

// mergeSnapshotLocked replaces the collection with snap while keeping what
// local state already knows is further along: statuses only advance,
// participants only grow, and conversations pushed after the fetch started
// are kept.
func (r *Registry) mergeSnapshotLocked(snap []helpdesk.Conversation, gen uint64) []helpdesk.Conversation {
	prev := make(map[string]helpdesk.Conversation, len(r.conversations))
	for _, c := range r.conversations {
		prev[c.ID] = c
	}

	out := make([]helpdesk.Conversation, 0, len(snap))
	inSnap := make(map[string]struct{}, len(snap))
	for _, c := range snap {
		if _, dup := inSnap[c.ID]; dup {
			continue
		}
		inSnap[c.ID] = struct{}{}
		cp := c.Clone()
		if old, ok := prev[c.ID]; ok {
			cp.Status = old.Status.Advance(cp.Status)
			if cp.ClosedAt == nil && old.ClosedAt != nil {
				cp.ClosedAt = old.ClosedAt
			}
			if cp.ClosedBy == nil && old.ClosedBy != nil {
				cp.ClosedBy = old.ClosedBy
			}
			for _, p := range old.Participants {
				if p.ID != "" && !cp.HasParticipant(p.ID) {
					cp.Participants = append(cp.Participants, p)
				}
			}
		}
		out = append(out, cp)
	}

	var late []helpdesk.Conversation
	for _, c := range r.conversations {
		if _, ok := inSnap[c.ID]; ok {
			continue
		}
		if g, pushed := r.pushed[c.ID]; pushed && g >= gen {
			late = append(late, c)
		}
	}
	for id, g := range r.pushed {
		if g < gen {
			delete(r.pushed, id)
		}
	}
	return append(late, out...)
}

// FetchMessages loads the history of conversationID into the history sink.
// The result is dropped if another FetchMessages started meanwhile or the
// selection moved to a different conversation.
func (r *Registry) FetchMessages(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrMissingSelection
	}
	r.mu.Lock()
	r.messagesGen++
	gen := r.messagesGen
	r.mu.Unlock()

	msgs, err := r.api.ListMessages(ctx, conversationID)
	stale := r.historySuperseded(gen, conversationID)
	if err != nil {
		if !api.IsUnauthorized(err) && stale {
			r.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("discarding failure of stale history")
			return nil
		}
		return r.fail(ctx, err, "Failed to load messages", "fetch messages")
	}
	if stale {
		r.logger.Debug().Str("conversation_id", conversationID).Msg("discarding stale history")
		return nil
	}
	if r.history != nil {
		r.history.ReplaceHistory(conversationID, msgs)
	}
	return nil
}

func (r *Registry) fetchSuperseded(gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gen != r.fetchGen
}

func (r *Registry) historySuperseded(gen uint64, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gen != r.messagesGen || (r.selectedID != "" && r.selectedID != conversationID)
}

// fail routes 401s to session invalidation and everything else to the
// error banner.
func (r *Registry) fail(ctx context.Context, err error, fallback, op string) error {
	if api.IsUnauthorized(err) {
		r.sess.Invalidate(ctx, err)
	} else if r.banner != nil {
		r.banner.Error(api.UserMessage(err, fallback))
	}
	r.logger.Warn().Err(err).Str("op", op).Msg("request failed")
	return errors.Wrap(err, op)
}
