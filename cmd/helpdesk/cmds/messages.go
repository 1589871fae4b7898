package cmds

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/stream"
)

func NewMessagesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"m"},
		Short:   "Read and send ticket messages",
	}
	cmd.AddCommand(newMessagesListCommand(app), newMessagesSendCommand(app))
	return cmd
}

// transcript renders a history as markdown.
func transcript(conv helpdesk.Conversation, msgs []helpdesk.Message) string {
	var b strings.Builder
	if conv.Subject != "" {
		fmt.Fprintf(&b, "# %s\n\n", conv.Subject)
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "**%s** · _%s_\n\n", m.Sender.DisplayName(), ago(m.SentAt))
		if m.Body != "" {
			fmt.Fprintf(&b, "%s\n\n", m.Body)
		}
		if m.HasAttachment() {
			name := m.Attachment.Filename
			if name == "" {
				name = filepath.Base(m.Attachment.URL)
			}
			size := ""
			if m.Attachment.Size > 0 {
				size = " (" + humanize.Bytes(uint64(m.Attachment.Size)) + ")"
			}
			fmt.Fprintf(&b, "![%s](%s)%s\n\n", name, m.Attachment.URL, size)
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

func newMessagesListCommand(app *App) *cobra.Command {
	var (
		raw     bool
		copyOut bool
	)
	cmd := &cobra.Command{
		Use:   "list ID",
		Short: "Show the message history of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			id := args[0]
			if err := d.Registry.FetchAll(cmd.Context()); err != nil {
				return err
			}
			if err := d.Registry.FetchMessages(cmd.Context(), id); err != nil {
				return err
			}
			conv, _ := d.Registry.Get(id)
			md := transcript(conv, d.Stream.Messages(id))

			if copyOut {
				if err := clipboard.WriteAll(md); err != nil {
					return errors.Wrap(err, "copy to clipboard")
				}
			}
			if raw || !stdoutIsTTY() {
				fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return errors.Wrap(err, "markdown renderer")
			}
			out, err := r.Render(md)
			if err != nil {
				return errors.Wrap(err, "render transcript")
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without terminal styling")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Also copy the transcript to the clipboard")
	return cmd
}

// loadImage reads a local file and sniffs its content type.
func loadImage(path string) (stream.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stream.File{}, errors.Wrapf(err, "read %s", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return stream.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func newMessagesSendCommand(app *App) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "send ID [TEXT...]",
		Short: "Send a message, optionally with an image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			d.Registry.Select(helpdesk.Conversation{ID: args[0]})
			d.Stream.SetDraft(strings.Join(args[1:], " "))
			if image != "" {
				f, err := loadImage(image)
				if err != nil {
					return err
				}
				if err := d.Stream.SelectAttachment(f); err != nil {
					return err
				}
			}
			sent, err := d.Send(cmd.Context())
			if err != nil {
				return err
			}
			if !sent {
				return errors.New("nothing to send: give a message text or --image")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Path to an image to attach (jpeg, png, gif, webp; max 5MB)")
	return cmd
}
