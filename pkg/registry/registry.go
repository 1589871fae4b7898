// Package registry is the client-side cache of conversations, users and
// IT staff, together with the current selection. Remote data enters through
// FetchAll and the Apply* methods, which the event router calls for pushes.
// Status transitions merge forward only, so replays and late snapshots
// cannot reopen a closed conversation.
package registry

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/session"
)

var (
	ErrEmptySubject     = errors.New("ticket subject is empty")
	ErrMissingSelection = errors.New("conversation and IT staff must both be selected")
	ErrForbidden        = errors.New("not permitted for this role")
	ErrNotConfirmed     = errors.New("confirmation required")
)

// API is the subset of the REST client the registry calls.
type API interface {
	ListConversations(ctx context.Context) ([]helpdesk.Conversation, error)
	ListUsers(ctx context.Context) ([]helpdesk.User, error)
	ListUsersByRole(ctx context.Context, role helpdesk.Role) ([]helpdesk.User, error)
	CreateConversation(ctx context.Context, subject string) (helpdesk.Conversation, error)
	CloseConversation(ctx context.Context, conversationID string) error
	AddITStaff(ctx context.Context, conversationID, staffID string) error
	ListMessages(ctx context.Context, conversationID string) ([]helpdesk.Message, error)
	UpdateUserRole(ctx context.Context, userID string, role helpdesk.Role) error
}

type Session interface {
	Identity() (session.Identity, bool)
	Invalidate(ctx context.Context, cause error)
}

// HistorySink receives fetched message histories.
type HistorySink interface {
	ReplaceHistory(conversationID string, msgs []helpdesk.Message)
}

type Banner interface {
	Success(msg string)
	Error(msg string)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

type Config struct {
	API     API
	Session Session
	History HistorySink
	Banner  Banner
}

type Registry struct {
	api     API
	sess    Session
	history HistorySink
	banner  Banner
	logger  zerolog.Logger

	mu            sync.RWMutex
	conversations []helpdesk.Conversation
	users         []helpdesk.User
	staff         []helpdesk.User
	selectedID    string
	selected      *helpdesk.Conversation
	fetchGen      uint64
	messagesGen   uint64
	// pushed records the fetch generation current when a conversation was
	// inserted by a push, so an in-flight snapshot does not drop it.
	pushed map[string]uint64

	listeners []func()
}

func New(cfg Config) (*Registry, error) {
	if cfg.API == nil {
		return nil, errors.New("registry: api is nil")
	}
	if cfg.Session == nil {
		return nil, errors.New("registry: session is nil")
	}
	return &Registry{
		api:     cfg.API,
		sess:    cfg.Session,
		history: cfg.History,
		banner:  cfg.Banner,
		logger:  log.With().Str("component", "registry").Logger(),
		pushed:  map[string]uint64{},
	}, nil
}

func (r *Registry) OnChange(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) changed() {
	r.mu.RLock()
	ls := append([]func(){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range ls {
		fn()
	}
}

func (r *Registry) role() helpdesk.Role {
	id, ok := r.sess.Identity()
	if !ok {
		return ""
	}
	return id.Role
}

func (r *Registry) indexLocked(id string) int {
	for i := range r.conversations {
		if r.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// Conversations returns a copy of the collection, newest first.
func (r *Registry) Conversations() []helpdesk.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]helpdesk.Conversation, len(r.conversations))
	for i, c := range r.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (r *Registry) Get(id string) (helpdesk.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.conversations[i].Clone(), true
	}
	return helpdesk.Conversation{}, false
}

func (r *Registry) Users() []helpdesk.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]helpdesk.User(nil), r.users...)
}

func (r *Registry) ITStaff() []helpdesk.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]helpdesk.User(nil), r.staff...)
}

// Select makes conv the current selection. The snapshot is kept for
// conversations that are not (yet) part of the collection.
func (r *Registry) Select(conv helpdesk.Conversation) {
	cp := conv.Clone()
	r.mu.Lock()
	r.selectedID = conv.ID
	r.selected = &cp
	r.mu.Unlock()
	r.changed()
}

// SelectByID selects a conversation from the collection.
func (r *Registry) SelectByID(id string) bool {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	cp := r.conversations[i].Clone()
	r.selectedID = id
	r.selected = &cp
	r.mu.Unlock()
	r.changed()
	return true
}

func (r *Registry) SelectedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedID
}

// Selected returns the live collection entry for the selection, falling
// back to the snapshot taken at selection time.
func (r *Registry) Selected() (helpdesk.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selectedID == "" {
		return helpdesk.Conversation{}, false
	}
	if i := r.indexLocked(r.selectedID); i >= 0 {
		return r.conversations[i].Clone(), true
	}
	if r.selected != nil {
		return r.selected.Clone(), true
	}
	return helpdesk.Conversation{}, false
}

func (r *Registry) ClearSelection() {
	r.mu.Lock()
	had := r.selectedID != ""
	r.selectedID = ""
	r.selected = nil
	r.mu.Unlock()
	if had {
		r.changed()
	}
}
