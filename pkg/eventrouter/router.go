// Package eventrouter turns inbound realtime events into registry, stream
// and notification updates. Events are applied one at a time in arrival
// order; every handler is idempotent so replays are harmless.
package eventrouter

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/eventbus"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/session"
)

var ErrUnknownEvent = errors.New("unknown event")

type Session interface {
	Identity() (session.Identity, bool)
}

type Registry interface {
	SelectedID() string
	ApplyStatusClosed(conv helpdesk.Conversation, closedBy *helpdesk.User) bool
	ApplyStaffAdded(conv helpdesk.Conversation, staff helpdesk.User) bool
	ApplyNewTicket(conv helpdesk.Conversation) bool
}

type Stream interface {
	ReceiveMessage(msg helpdesk.Message, selectedID string) bool
	NoteTyping(sig helpdesk.TypingSignal, selfID string) bool
	NoteStopTyping(sig helpdesk.TypingSignal) bool
}

// Source yields bus messages carrying the event name in metadata.
type Source interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

type Config struct {
	Session  Session
	Registry Registry
	Stream   Stream
	Notifier notify.Notifier
	Source   Source
	// OnViewClosed runs when a ticket_closed event closes the selected
	// conversation.
	OnViewClosed func(conversationID string)
}

type Router struct {
	sess         Session
	registry     Registry
	stream       Stream
	notifier     notify.Notifier
	source       Source
	onViewClosed func(string)
	logger       zerolog.Logger

	dispatchMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(cfg Config) (*Router, error) {
	if cfg.Session == nil || cfg.Registry == nil || cfg.Stream == nil {
		return nil, errors.New("eventrouter: session, registry and stream are required")
	}
	n := cfg.Notifier
	if n == nil {
		n = notify.Nop
	}
	return &Router{
		sess:         cfg.Session,
		registry:     cfg.Registry,
		stream:       cfg.Stream,
		notifier:     n,
		source:       cfg.Source,
		onViewClosed: cfg.OnViewClosed,
		logger:       log.With().Str("component", "eventrouter").Logger(),
	}, nil
}

// Dispatch applies one event. Unknown events and undecodable payloads are
// reported and leave state unchanged.
func (r *Router) Dispatch(event string, data []byte) error {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	self, _ := r.sess.Identity()

	switch event {
	case EventNewMessage:
		var p NewMessagePayload
		if err := decode(event, data, &p); err != nil {
			return err
		}
		r.stream.ReceiveMessage(p.Message, r.registry.SelectedID())
		if n, ok := NewMessageNotification(self, p.Message); ok {
			r.notifier.Notify(n)
		}

	case EventTicketClosed:
		var p TicketClosedPayload
		if err := decode(event, data, &p); err != nil {
			return err
		}
		if r.registry.ApplyStatusClosed(p.Conversation, p.ClosedBy) && r.onViewClosed != nil {
			r.onViewClosed(p.Conversation.ID)
		}
		if n, ok := TicketClosedNotification(self, p); ok {
			r.notifier.Notify(n)
		}

	case EventITStaffAdded:
		var p ITStaffAddedPayload
		if err := decode(event, data, &p); err != nil {
			return err
		}
		r.registry.ApplyStaffAdded(p.Conversation, p.ITStaff)
		if n, ok := ITStaffAddedNotification(self, p); ok {
			r.notifier.Notify(n)
		}

	case EventNewTicket:
		var p NewTicketPayload
		if err := decode(event, data, &p); err != nil {
			return err
		}
		if !self.Role.IsStaff() {
			return nil
		}
		r.registry.ApplyNewTicket(p.Conversation)
		if n, ok := NewTicketNotification(self, p); ok {
			r.notifier.Notify(n)
		}

	case EventUserTyping:
		var sig helpdesk.TypingSignal
		if err := decode(event, data, &sig); err != nil {
			return err
		}
		r.stream.NoteTyping(sig, self.UserID)

	case EventUserStopTyping:
		var sig helpdesk.TypingSignal
		if err := decode(event, data, &sig); err != nil {
			return err
		}
		r.stream.NoteStopTyping(sig)

	default:
		return errors.Wrapf(ErrUnknownEvent, "%q", event)
	}
	return nil
}

func decode(event string, data []byte, out any) error {
	if len(data) == 0 {
		return errors.Errorf("%s: empty payload", event)
	}
	return errors.Wrapf(json.Unmarshal(data, out), "%s: decode payload", event)
}

// Start subscribes to the source and dispatches its messages in order until
// ctx is cancelled or Stop is called. The subscription exists when Start
// returns.
func (r *Router) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("eventrouter: no source configured")
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := r.source.Subscribe(runCtx)
	if err != nil {
		r.mu.Unlock()
		cancel()
		return errors.Wrap(err, "eventrouter: subscribe")
	}
	done := make(chan struct{})
	r.cancel, r.done, r.running = cancel, done, true
	r.mu.Unlock()

	r.logger.Info().Msg("event router started")
	go r.consume(ch, done)
	return nil
}

func (r *Router) consume(ch <-chan *message.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		event := msg.Metadata.Get(eventbus.MetadataEvent)
		if err := r.Dispatch(event, msg.Payload); err != nil {
			r.logger.Warn().Err(err).
				Str("event", event).
				Str("stream_id", extractStreamID(msg)).
				Msg("event dropped")
		}
		msg.Ack()
	}
	r.logger.Info().Msg("event router stopped")
	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.mu.Unlock()
}

// Stop cancels the subscription and waits for the consumer to drain.
func (r *Router) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Router) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func extractStreamID(msg *message.Message) string {
	for _, k := range []string{"xid", "redis_xid"} {
		if v := msg.Metadata.Get(k); v != "" {
			return v
		}
	}
	return msg.UUID
}
