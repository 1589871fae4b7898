package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/go-go-golems/helpdesk/pkg/eventbus"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/persistence/credstore"
	"github.com/go-go-golems/helpdesk/pkg/transport"
)

type backend struct {
	srv *httptest.Server

	mu           sync.Mutex
	frames       []transport.Frame
	sent         []string
	unauthorized bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":` + body + `}`))
	}
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"_id":"s1","nama":"Budi","role":"it_staff"}`)
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		unauth := b.unauthorized
		b.mu.Unlock()
		if unauth {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Token expired"}`))
			return
		}
		reply(w, `[{"_id":"c1","subject":"VPN","status":"open","participants":[{"_id":"u1","nama":"Ana","role":"user"}]}]`)
	})
	mux.HandleFunc("/messages/c1", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `[{"_id":"m1","conversation_id":"c1","sender_id":{"_id":"u1","nama":"Ana"},"isi_pesan":"help","sent_at":"2024-01-01T10:00:00Z"}]`)
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		b.mu.Lock()
		b.sent = append(b.sent, r.FormValue("isi_pesan"))
		b.mu.Unlock()
		reply(w, `{}`)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f transport.Frame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			b.mu.Lock()
			b.frames = append(b.frames, f)
			b.mu.Unlock()
			if f.Event == transport.EventJoinConversation {
				push := `{"event":"new_message","data":{"message":{"_id":"m2","conversation_id":"c1","sender_id":{"_id":"u1","nama":"Ana"},"isi_pesan":"still broken","sent_at":"2024-01-01T10:05:00Z"}}}`
				_ = conn.WriteMessage(websocket.TextMessage, []byte(push))
			}
		}
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) sawFrame(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.frames {
		if f.Event == event {
			return true
		}
	}
	return false
}

func newDesk(t *testing.T, b *backend, notes notify.Notifier) *Desk {
	t.Helper()
	return newDeskWithBus(t, b, notes, eventbus.Settings{})
}

func newDeskWithBus(t *testing.T, b *backend, notes notify.Notifier, bus eventbus.Settings) *Desk {
	t.Helper()
	s := config.Settings{
		APIURL:           b.srv.URL,
		WSURL:            "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws",
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
		Bus:              bus,
	}
	d, err := New(context.Background(), Options{Settings: s, Store: credstore.NewInMemory("tok"), Notifier: notes})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDeskEndToEnd(t *testing.T) {
	b := newBackend(t)
	notes := notify.NewChanNotifier(16)
	d := newDesk(t, b, notes)
	ctx := context.Background()

	id, err := d.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", id.UserID)
	require.Len(t, d.Registry.Conversations(), 1)
	require.Eventually(t, d.Channel.IsConnected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.OpenConversation(ctx, "c1"))
	require.Eventually(t, func() bool { return len(d.Stream.Messages("c1")) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "m1", d.Stream.Messages("c1")[0].ID)

	select {
	case n := <-notes.C():
		require.Equal(t, "New message from Ana", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	d.Type("on it")
	require.Eventually(t, func() bool { return b.sawFrame(transport.EventTyping) }, 2*time.Second, 5*time.Millisecond)

	ok, err := d.Send(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, d.Stream.Draft())
	require.Eventually(t, func() bool { return b.sawFrame(transport.EventStopTyping) }, 2*time.Second, 5*time.Millisecond)

	b.mu.Lock()
	require.Equal(t, []string{"on it"}, b.sent)
	b.mu.Unlock()
	require.Len(t, d.Stream.Messages("c1"), 2)
}

func TestDeskUnauthorizedEndsSession(t *testing.T) {
	b := newBackend(t)
	d := newDesk(t, b, nil)
	ctx := context.Background()

	_, err := d.Start(ctx)
	require.NoError(t, err)
	require.Eventually(t, d.Channel.IsConnected, 2*time.Second, 5*time.Millisecond)

	b.mu.Lock()
	b.unauthorized = true
	b.mu.Unlock()

	require.Error(t, d.Registry.FetchAll(ctx))
	_, ok := d.Session.Identity()
	require.False(t, ok)
	require.False(t, d.Session.HasToken(ctx))
	require.False(t, d.Channel.IsConnected())
}

func TestObserverDeskFollowsOwnerFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newBackend(t)
	ctx := context.Background()

	bus := eventbus.Settings{RedisEnabled: true, RedisAddr: mr.Addr()}
	owner := newDeskWithBus(t, b, nil, bus)
	bus.RedisObserve = true
	observer := newDeskWithBus(t, b, nil, bus)

	_, err := observer.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, observer.OpenConversation(ctx, "c1"))

	_, err = owner.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, owner.OpenConversation(ctx, "c1"))

	hasPushed := func(d *Desk) func() bool {
		return func() bool {
			for _, m := range d.Stream.Messages("c1") {
				if m.ID == "m2" {
					return true
				}
			}
			return false
		}
	}
	require.Eventually(t, hasPushed(owner), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, hasPushed(observer), 5*time.Second, 10*time.Millisecond)
	require.False(t, observer.Channel.IsConnected())
}
