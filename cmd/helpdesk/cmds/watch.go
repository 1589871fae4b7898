package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/client"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
)

func NewWatchCommand(app *App) *cobra.Command {
	var (
		conversationID string
		observe        bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print notifications as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if observe {
				if !app.Settings.Bus.RedisEnabled {
					return errors.New("--observe needs --redis-enabled")
				}
				app.Settings.Bus.RedisObserve = true
			}
			notes := notify.NewChanNotifier(64)
			d, err := app.NewDesk(ctx, notify.Multi{notes, notify.NewLogNotifier()})
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			return watchDesk(ctx, cmd.OutOrStdout(), d, notes, conversationID)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Also follow the messages of this ticket")
	cmd.Flags().BoolVar(&observe, "observe", false, "Follow the Redis feed of another running helpdesk instead of connecting")
	return cmd
}

// watchDesk starts d and prints connection changes, notifications and,
// when conversationID is set, that conversation's messages until ctx ends.
func watchDesk(ctx context.Context, out io.Writer, d *client.Desk, notes *notify.ChanNotifier, conversationID string) error {
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	d.Channel.OnStateChange(func(connected bool) {
		if connected {
			printf("* connected\n")
		} else {
			printf("* disconnected, retrying\n")
		}
	})
	id, err := d.Start(ctx)
	if err != nil {
		return err
	}
	printf("Watching as %s (%s). Ctrl-C to stop.\n", id.Name, id.Role)
	if d.Bus.Observing() {
		printf("* observing redis feed\n")
	}

	if conversationID != "" {
		if err := d.OpenConversation(ctx, conversationID); err != nil {
			return err
		}
		f := newFollower(printf)
		flush := func() {
			f.flush(d.Stream.Messages(conversationID), d.Stream.Typers(conversationID))
		}
		flush()
		d.Stream.OnChange(flush)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-notes.C():
			printf("%s [%s] %s: %s\n", time.Now().Format(time.Kitchen), n.Level, n.Title, n.Description)
		}
	}
}

// follower prints each message of a conversation once and the typing line
// whenever it changes.
type follower struct {
	mu         sync.Mutex
	printf     func(string, ...any)
	printed    map[string]bool
	lastTyping string
}

func newFollower(printf func(string, ...any)) *follower {
	return &follower{printf: printf, printed: map[string]bool{}}
}

func (f *follower) flush(msgs []helpdesk.Message, typers []helpdesk.TypingSignal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		key := messageKey(m)
		if f.printed[key] {
			continue
		}
		f.printed[key] = true
		body := m.Body
		if body == "" && m.HasAttachment() {
			body = "[image] " + m.Attachment.URL
		}
		f.printf("%s %s: %s\n", m.SentAt.Local().Format(time.Kitchen), m.Sender.DisplayName(), body)
	}
	names := make([]string, 0, len(typers))
	for _, t := range typers {
		names = append(names, t.Name)
	}
	if typing := strings.Join(names, ", "); typing != f.lastTyping {
		f.lastTyping = typing
		if typing != "" {
			f.printf("  %s typing...\n", typing)
		}
	}
}

// messageKey identifies a message by id, or by its content when the
// backend sent none.
func messageKey(m helpdesk.Message) string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	url := ""
	if m.Attachment != nil {
		url = m.Attachment.URL
	}
	return strings.Join([]string{"anon", m.SentAt.UTC().Format(time.RFC3339Nano), m.Sender.ID, m.Body, url}, "\x00")
}
