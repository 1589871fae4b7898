package tui

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/go-go-golems/helpdesk/pkg/client"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/stream"
)

// deskView adapts a started client.Desk with one open conversation.
type deskView struct {
	d  *client.Desk
	id string
}

func (v deskView) SelfID() string { return v.d.Session.UserID() }

func (v deskView) Conversation() (helpdesk.Conversation, bool) {
	if c, ok := v.d.Registry.Selected(); ok {
		return c, true
	}
	return v.d.Registry.Get(v.id)
}

func (v deskView) Messages() []helpdesk.Message             { return v.d.Stream.Messages(v.id) }
func (v deskView) Typers() []helpdesk.TypingSignal          { return v.d.Stream.Typers(v.id) }
func (v deskView) Banner() notify.BannerState               { return v.d.Banner.State() }
func (v deskView) Connected() bool                          { return v.d.Channel.IsConnected() }
func (v deskView) Type(text string)                         { v.d.Type(text) }
func (v deskView) ClearAttachment()                         { v.d.Stream.ClearAttachment() }
func (v deskView) Attachment() (stream.PendingUpload, bool) { return v.d.Stream.Attachment() }
func (v deskView) Send(ctx context.Context) (bool, error)   { return v.d.Send(ctx) }

func (v deskView) Attach(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return v.d.Stream.SelectAttachment(stream.File{Name: filepath.Base(path), ContentType: ct, Data: data})
}

// Run opens conversationID on a started desk and blocks until the user
// quits. notes should be the channel notifier the desk was built with.
func Run(ctx context.Context, d *client.Desk, conversationID string, notes *notify.ChanNotifier) error {
	if err := d.OpenConversation(ctx, conversationID); err != nil {
		return err
	}
	p := tea.NewProgram(NewModel(ctx, deskView{d: d, id: conversationID}), tea.WithAltScreen(), tea.WithContext(ctx))

	// Callbacks can fire from inside Update (typing updates the draft), and
	// p.Send blocks until the event loop reads, so they send asynchronously.
	refresh := func() { go p.Send(RefreshMsg{}) }
	d.Stream.OnChange(refresh)
	d.Registry.OnChange(func() {
		if d.Registry.SelectedID() != conversationID {
			go p.Send(ClosedMsg{})
			return
		}
		refresh()
	})
	d.Banner.OnChange(func(notify.BannerState) { refresh() })
	d.Channel.OnStateChange(func(bool) { refresh() })

	if notes != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case n := <-notes.C():
					p.Send(NotificationMsg(n))
				}
			}
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
