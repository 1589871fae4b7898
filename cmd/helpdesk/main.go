package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/cmd/helpdesk/cmds"
	"github.com/go-go-golems/helpdesk/pkg/config"
)

func main() {
	app := &cmds.App{}
	rootCmd := &cobra.Command{
		Use:           "helpdesk",
		Short:         "helpdesk is a terminal client for the IT helpdesk ticket system",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// flags are parsed by now, so logging can honour --log-level and co
			return app.Init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Shutdown()
		},
	}
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		cmds.NewLoginCommand(app),
		cmds.NewLogoutCommand(app),
		cmds.NewWhoamiCommand(app),
		cmds.NewTicketsCommand(app),
		cmds.NewMessagesCommand(app),
		cmds.NewUsersCommand(app),
		cmds.NewWatchCommand(app),
		cmds.NewChatCommand(app),
		cmds.NewConfigCommand(app),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
