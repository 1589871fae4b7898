// Package transport owns the live websocket connection to the helpdesk
// backend: one authenticated socket per session, room joins, fire-and-forget
// typing signals and reconnection.
//
// Errors stop at this layer. A failed dial or a dropped socket is logged,
// IsConnected flips to false and the channel keeps retrying until Disconnect.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/helpdesk/pkg/session"
)

// Session is the part of the session context the channel needs.
type Session interface {
	Identity() (session.Identity, bool)
	Token(ctx context.Context) (string, error)
}

type Config struct {
	URL              string
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Dialer           *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	return c
}

type Channel struct {
	cfg    Config
	sess   Session
	logger zerolog.Logger

	handlerMu  sync.RWMutex
	handler    InboundHandler
	subscribed atomic.Bool

	mu         sync.Mutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	done       chan struct{}
	rooms      []string
	stateHooks []func(bool)

	writeMu   sync.Mutex
	connected atomic.Bool
}

func NewChannel(cfg Config, sess Session, handler InboundHandler) (*Channel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("transport: url is required")
	}
	if sess == nil {
		return nil, errors.New("transport: session is nil")
	}
	return &Channel{
		cfg:     cfg.withDefaults(),
		sess:    sess,
		handler: handler,
		logger:  log.With().Str("component", "transport").Str("url", cfg.URL).Logger(),
	}, nil
}

// SetHandler replaces the inbound handler.
func (c *Channel) SetHandler(h InboundHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// OnStateChange registers a callback for connected/disconnected transitions.
func (c *Channel) OnStateChange(fn func(connected bool)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.stateHooks = append(c.stateHooks, fn)
	c.mu.Unlock()
}

func (c *Channel) IsConnected() bool { return c.connected.Load() }

// Connect starts the connection loop. Without an identity or a stored token
// it returns without attempting a connection. Calling Connect while the
// loop is running is a no-op.
func (c *Channel) Connect(ctx context.Context) {
	id, ok := c.sess.Identity()
	if !ok {
		c.logger.Debug().Msg("connect skipped: no session")
		return
	}
	if tok, err := c.sess.Token(ctx); err != nil || tok == "" {
		c.logger.Debug().Msg("connect skipped: no credential")
		return
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.subscribed.Store(true)
	c.logger.Info().Str("user_id", id.UserID).Msg("transport connecting")
	go c.run(runCtx, done)
}

// Disconnect detaches inbound delivery, closes the socket and stops the
// connection loop. It is safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.subscribed.Store(false)

	// Cancel under mu: serve either published its conn before this point or
	// sees the cancelled context when it takes mu.
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	if cancel != nil {
		cancel()
	}
	conn := c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	c.setConnected(false)
}

// JoinConversation asks the backend for delivery of a conversation room.
// Joins are additive and replayed after every reconnect.
func (c *Channel) JoinConversation(conversationID string) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return
	}
	c.mu.Lock()
	known := false
	for _, r := range c.rooms {
		if r == conversationID {
			known = true
			break
		}
	}
	if !known {
		c.rooms = append(c.rooms, conversationID)
	}
	c.mu.Unlock()
	c.emit(EventJoinConversation, conversationID)
}

func (c *Channel) EmitTyping(conversationID string) {
	c.emit(EventTyping, typingPayload{ConversationID: conversationID})
}

func (c *Channel) EmitStopTyping(conversationID string) {
	c.emit(EventStopTyping, typingPayload{ConversationID: conversationID})
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitial
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			return
		}
		token, err := c.sess.Token(ctx)
		if err != nil || token == "" {
			c.logger.Info().Msg("credential gone, stopping transport")
			return
		}
		conn, err := c.dial(ctx, token)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dial failed")
		} else {
			bo.Reset()
			c.serve(ctx, conn)
		}

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial: status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial")
	}
	return conn, nil
}

// serve owns one live socket until it fails or the loop is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	rooms := append([]string(nil), c.rooms...)
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	c.setConnected(true)
	c.logger.Info().Int("rooms", len(rooms)).Msg("transport connected")
	for _, room := range rooms {
		c.writeFrame(conn, EventJoinConversation, room)
	}

	pingDone := make(chan struct{})
	if c.cfg.PingInterval > 0 {
		pongWait := c.cfg.PingInterval * 2
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go c.keepalive(conn, pingDone)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("transport read loop end")
			}
			break
		}
		c.deliver(data)
	}
	close(pingDone)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
	c.setConnected(false)
	c.logger.Info().Msg("transport disconnected")
}

func (c *Channel) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Channel) deliver(raw []byte) {
	if !c.subscribed.Load() {
		return
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		c.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping malformed frame")
		return
	}
	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		return
	}
	h.HandleFrame(f.Event, f.Data)
}

func (c *Channel) emit(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Debug().Str("event", event).Msg("not connected, dropping outbound frame")
		return
	}
	c.writeFrame(conn, event, payload)
}

func (c *Channel) writeFrame(conn *websocket.Conn, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("encode outbound payload")
		return
	}
	b, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("encode outbound frame")
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Debug().Err(err).Str("event", event).Msg("write failed")
	}
}

func (c *Channel) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	c.mu.Lock()
	hooks := append([]func(bool){}, c.stateHooks...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(v)
	}
}
