// Package session holds the authenticated identity the sync engine uses to
// interpret events, and the credential it presents to the backend.
//
// The identity is read-only interpretation state: it decides which
// notifications fire and which mutations are attempted client-side. It is
// never an authority; the backend re-checks everything.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/persistence/credstore"
)

var ErrNoCredential = credstore.ErrNoCredential

type Identity struct {
	UserID string
	Name   string
	Role   helpdesk.Role
}

func IdentityFromUser(u helpdesk.User) Identity {
	return Identity{UserID: u.ID, Name: u.Name, Role: u.Role}
}

// IdentityFetcher resolves the identity behind the stored credential (GET /auth/me).
type IdentityFetcher interface {
	Me(ctx context.Context) (helpdesk.User, error)
}

// Context is the per-client session container. It is safe for concurrent use.
type Context struct {
	creds credstore.Store

	mu        sync.RWMutex
	identity  *Identity
	onInvalid []func(error)
}

func NewContext(creds credstore.Store) (*Context, error) {
	if creds == nil {
		return nil, errors.New("session: credential store is nil")
	}
	return &Context{creds: creds}, nil
}

// Token implements the API client's token source.
func (c *Context) Token(ctx context.Context) (string, error) {
	return c.creds.Load(ctx)
}

func (c *Context) HasToken(ctx context.Context) bool {
	tok, err := c.creds.Load(ctx)
	return err == nil && tok != ""
}

func (c *Context) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

func (c *Context) UserID() string {
	id, _ := c.Identity()
	return id.UserID
}

func (c *Context) Role() helpdesk.Role {
	id, _ := c.Identity()
	return id.Role
}

func (c *Context) SetIdentity(id Identity) {
	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
}

// OnInvalid registers the login-boundary redirect, called whenever the
// session is found to be invalid.
func (c *Context) OnInvalid(fn func(error)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onInvalid = append(c.onInvalid, fn)
	c.mu.Unlock()
}

// Login stores a bearer token. The identity is resolved by the next Load.
func (c *Context) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: empty token")
	}
	return errors.Wrap(c.creds.Save(ctx, token), "session: save credential")
}

// Load resolves the identity for the stored credential. A missing token or a
// failed lookup invalidates the session.
func (c *Context) Load(ctx context.Context, fetcher IdentityFetcher) (Identity, error) {
	if !c.HasToken(ctx) {
		c.Invalidate(ctx, ErrNoCredential)
		return Identity{}, ErrNoCredential
	}
	u, err := fetcher.Me(ctx)
	if err != nil {
		err = errors.Wrap(err, "session expired")
		c.Invalidate(ctx, err)
		return Identity{}, err
	}
	id := IdentityFromUser(u)
	c.SetIdentity(id)
	log.Debug().Str("component", "session").Str("user_id", id.UserID).Str("role", string(id.Role)).Msg("session loaded")
	return id, nil
}

func (c *Context) Logout(ctx context.Context) error {
	c.Invalidate(ctx, nil)
	return nil
}

// Invalidate clears the credential and identity and runs the OnInvalid hooks.
// cause is nil for a voluntary logout.
func (c *Context) Invalidate(ctx context.Context, cause error) {
	if err := c.creds.Clear(ctx); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("clear credential failed")
	}
	c.mu.Lock()
	c.identity = nil
	hooks := append([]func(error){}, c.onInvalid...)
	c.mu.Unlock()

	if cause != nil {
		log.Info().Err(cause).Str("component", "session").Msg("session invalidated")
	}
	for _, fn := range hooks {
		fn(cause)
	}
}
