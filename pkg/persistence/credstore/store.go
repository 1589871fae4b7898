package credstore

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoCredential is returned by Load when nothing is stored for the profile.
var ErrNoCredential = errors.New("no stored credential")

// Store persists the single opaque bearer token of a client profile. It is
// the only client-side state that survives a restart.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

type InMemory struct {
	mu    sync.Mutex
	token string
}

var _ Store = &InMemory{}

func NewInMemory(token string) *InMemory {
	return &InMemory{token: strings.TrimSpace(token)}
}

func (s *InMemory) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

func (s *InMemory) Save(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("in-memory credential store: empty token")
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *InMemory) Clear(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

func (s *InMemory) Close() error { return nil }
