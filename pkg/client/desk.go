// Package client wires the session, REST client, realtime channel, event
// bus, registry, message stream and event router into a single Desk.
package client

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/api"
	"github.com/go-go-golems/helpdesk/pkg/clock"
	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/go-go-golems/helpdesk/pkg/eventbus"
	"github.com/go-go-golems/helpdesk/pkg/eventrouter"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/persistence/credstore"
	"github.com/go-go-golems/helpdesk/pkg/registry"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/go-go-golems/helpdesk/pkg/stream"
	"github.com/go-go-golems/helpdesk/pkg/transport"
)

type Options struct {
	Settings config.Settings
	// Store overrides the SQLite credential store at Settings.CredentialsDB.
	Store      credstore.Store
	Notifier   notify.Notifier
	Clock      clock.Clock
	HTTPClient *http.Client
}

type Desk struct {
	Settings config.Settings
	Session  *session.Context
	API      *api.Client
	Bus      *eventbus.Bus
	Channel  *transport.Channel
	Registry *registry.Registry
	Stream   *stream.Stream
	Router   *eventrouter.Router
	Banner   *notify.Banner

	store  credstore.Store
	logger zerolog.Logger
}

func New(ctx context.Context, opts Options) (*Desk, error) {
	s, err := opts.Settings.Normalize()
	if err != nil {
		return nil, err
	}
	d := &Desk{Settings: s, logger: log.With().Str("component", "desk").Logger()}

	d.store = opts.Store
	if d.store == nil {
		if err := os.MkdirAll(filepath.Dir(s.CredentialsDB), 0o700); err != nil {
			return nil, errors.Wrap(err, "create credentials dir")
		}
		st, err := credstore.NewSQLite(s.CredentialsDB, s.Profile)
		if err != nil {
			return nil, err
		}
		d.store = st
	}

	if d.Session, err = session.NewContext(d.store); err != nil {
		return nil, d.closeOnError(err)
	}
	if d.API, err = api.NewClient(api.ClientConfig{BaseURL: s.APIURL, Tokens: d.Session, HTTPClient: opts.HTTPClient}); err != nil {
		return nil, d.closeOnError(err)
	}
	if d.Bus, err = eventbus.Build(ctx, s.Bus); err != nil {
		return nil, d.closeOnError(err)
	}
	d.Channel, err = transport.NewChannel(transport.Config{
		URL:              s.WSURL,
		PingInterval:     s.PingInterval,
		ReconnectInitial: s.ReconnectInitial,
		ReconnectMax:     s.ReconnectMax,
	}, d.Session, d.Bus)
	if err != nil {
		return nil, d.closeOnError(err)
	}

	clk := clock.OrReal(opts.Clock)
	d.Banner = notify.NewBanner(clk, s.BannerTTL)
	d.Stream, err = stream.New(stream.Config{
		Sender:         d.API,
		Emitter:        d.Channel,
		Banner:         d.Banner,
		Clock:          clk,
		TypingExpiry:   s.TypingExpiry,
		TypingIdle:     s.TypingIdle,
		OnUnauthorized: d.Session.Invalidate,
	})
	if err != nil {
		return nil, d.closeOnError(err)
	}
	d.Registry, err = registry.New(registry.Config{
		API:     d.API,
		Session: d.Session,
		History: d.Stream,
		Banner:  d.Banner,
	})
	if err != nil {
		return nil, d.closeOnError(err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	d.Router, err = eventrouter.New(eventrouter.Config{
		Session:      d.Session,
		Registry:     d.Registry,
		Stream:       d.Stream,
		Notifier:     notifier,
		Source:       d.Bus,
		OnViewClosed: d.Stream.Forget,
	})
	if err != nil {
		return nil, d.closeOnError(err)
	}

	d.Session.OnInvalid(func(cause error) {
		d.logger.Info().AnErr("cause", cause).Msg("session ended, disconnecting")
		d.Channel.Disconnect()
		d.Registry.ClearSelection()
	})
	return d, nil
}

// Start resolves the identity, starts event routing, connects the realtime
// channel and loads the initial snapshot.
func (d *Desk) Start(ctx context.Context) (session.Identity, error) {
	id, err := d.Session.Load(ctx, d.API)
	if err != nil {
		return session.Identity{}, err
	}
	if err := d.Router.Start(ctx); err != nil {
		return id, err
	}
	if d.Bus.Observing() {
		d.logger.Info().Msg("observing redis feed, realtime socket stays closed")
	} else {
		d.Channel.Connect(ctx)
	}
	if err := d.Registry.FetchAll(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// OpenConversation selects a conversation, joins its room and loads its
// history.
func (d *Desk) OpenConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return registry.ErrMissingSelection
	}
	if !d.Registry.SelectByID(conversationID) {
		d.Registry.Select(helpdesk.Conversation{ID: conversationID})
	}
	d.Channel.JoinConversation(conversationID)
	return d.Registry.FetchMessages(ctx, conversationID)
}

// CreateTicket creates a conversation and opens it.
func (d *Desk) CreateTicket(ctx context.Context, subject string) (helpdesk.Conversation, error) {
	conv, err := d.Registry.CreateTicket(ctx, subject)
	if err != nil {
		return helpdesk.Conversation{}, err
	}
	d.Registry.Select(conv)
	d.Channel.JoinConversation(conv.ID)
	if err := d.Registry.FetchMessages(ctx, conv.ID); err != nil {
		return conv, err
	}
	return conv, nil
}

// Type updates the draft and announces typing in the open conversation.
func (d *Desk) Type(text string) {
	d.Stream.SetDraft(text)
	if id := d.Registry.SelectedID(); id != "" && text != "" {
		d.Stream.EmitTypingDebounced(id)
	}
}

// Send sends the compose state to the open conversation.
func (d *Desk) Send(ctx context.Context) (bool, error) {
	return d.Stream.Send(ctx, d.Registry.SelectedID())
}

func (d *Desk) Login(ctx context.Context, token string) (session.Identity, error) {
	if err := d.Session.Login(ctx, token); err != nil {
		return session.Identity{}, err
	}
	return d.Session.Load(ctx, d.API)
}

func (d *Desk) Logout(ctx context.Context) error {
	d.Channel.Disconnect()
	return d.Session.Logout(ctx)
}

// Close tears everything down. The stored credential is kept.
func (d *Desk) Close() error {
	if d.Channel != nil {
		d.Channel.Disconnect()
	}
	if d.Router != nil {
		d.Router.Stop()
	}
	var first error
	if d.Bus != nil {
		if err := d.Bus.Close(); err != nil {
			first = err
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Desk) closeOnError(err error) error {
	_ = d.Close()
	return err
}
