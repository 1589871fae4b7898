package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/cmd/helpdesk/cmds/tui"
	"github.com/go-go-golems/helpdesk/pkg/notify"
)

func NewChatCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat ID",
		Short: "Open an interactive chat view for a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			notes := notify.NewChanNotifier(32)
			d, err := app.NewDesk(ctx, notes)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			if _, err := d.Start(ctx); err != nil {
				return err
			}
			return tui.Run(ctx, d, args[0], notes)
		},
	}
}
