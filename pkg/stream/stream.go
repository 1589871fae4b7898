// Package stream keeps the message history of the open conversation, the
// set of remote users currently typing and the local compose state (draft
// text and a pending image upload).
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/api"
	"github.com/go-go-golems/helpdesk/pkg/clock"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

const (
	DefaultTypingExpiry = 3 * time.Second
	DefaultTypingIdle   = 3 * time.Second
	MaxAttachmentBytes  = 5 * 1024 * 1024
)

// Emitter sends fire-and-forget typing signals.
type Emitter interface {
	EmitTyping(conversationID string)
	EmitStopTyping(conversationID string)
}

type Sender interface {
	SendMessage(ctx context.Context, req api.SendMessageRequest) (helpdesk.Message, error)
}

type Banner interface {
	Error(msg string)
}

type Config struct {
	Sender  Sender
	Emitter Emitter
	Banner  Banner
	Clock   clock.Clock

	TypingExpiry       time.Duration
	TypingIdle         time.Duration
	MaxAttachmentBytes int64

	// OnUnauthorized is called when a send is rejected with 401.
	OnUnauthorized func(ctx context.Context, err error)
}

type Stream struct {
	sender  Sender
	emitter Emitter
	banner  Banner
	clock   clock.Clock
	logger  zerolog.Logger

	typingExpiry   time.Duration
	typingIdle     time.Duration
	maxAttachment  int64
	onUnauthorized func(context.Context, error)

	mu       sync.Mutex
	messages map[string][]helpdesk.Message
	typers   map[string]*typer

	draft      string
	pending    *PendingUpload
	pendingGen uint64
	uploading  bool

	debounce    *clock.Timer
	debounceGen uint64

	listeners []func()
}

func New(cfg Config) (*Stream, error) {
	if cfg.Sender == nil {
		return nil, errors.New("stream: sender is nil")
	}
	s := &Stream{
		sender:         cfg.Sender,
		emitter:        cfg.Emitter,
		banner:         cfg.Banner,
		clock:          clock.OrReal(cfg.Clock),
		logger:         log.With().Str("component", "stream").Logger(),
		typingExpiry:   cfg.TypingExpiry,
		typingIdle:     cfg.TypingIdle,
		maxAttachment:  cfg.MaxAttachmentBytes,
		onUnauthorized: cfg.OnUnauthorized,
		messages:       map[string][]helpdesk.Message{},
		typers:         map[string]*typer{},
	}
	if s.emitter == nil {
		s.emitter = nopEmitter{}
	}
	if s.typingExpiry <= 0 {
		s.typingExpiry = DefaultTypingExpiry
	}
	if s.typingIdle <= 0 {
		s.typingIdle = DefaultTypingIdle
	}
	if s.maxAttachment <= 0 {
		s.maxAttachment = MaxAttachmentBytes
	}
	return s, nil
}

// OnChange registers a callback run after any visible state change.
func (s *Stream) OnChange(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Stream) changed() {
	s.mu.Lock()
	ls := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

type nopEmitter struct{}

func (nopEmitter) EmitTyping(string)     {}
func (nopEmitter) EmitStopTyping(string) {}
