package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/registry"
)

func NewTicketsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"t"},
		Short:   "List and manage tickets",
	}
	cmd.AddCommand(
		newTicketsListCommand(app),
		newTicketsStatsCommand(app),
		newTicketsCreateCommand(app),
		newTicketsCloseCommand(app),
		newTicketsAssignCommand(app),
	)
	return cmd
}

func newTicketsListCommand(app *App) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tickets visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if err := d.Registry.FetchAll(cmd.Context()); err != nil {
				return err
			}

			rows := [][]string{}
			for _, c := range d.Registry.Filter(helpdesk.Status(status)) {
				creator, _ := c.Creator()
				rows = append(rows, []string{c.ID, c.Subject, statusLabel(c.Status), creator.DisplayName(), fmt.Sprint(len(c.Participants)), ago(c.CreatedAt)})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tickets")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Subject", "Status", "Creator", "Participants", "Created"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show tickets with this status (open, in_progress, closed)")
	return cmd
}

func newTicketsStatsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ticket counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if err := d.Registry.FetchAll(cmd.Context()); err != nil {
				return err
			}
			s := d.Registry.Stats()
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Total", "Open", "In Progress", "Closed"},
				[][]string{{fmt.Sprint(s.Total), fmt.Sprint(s.Open), fmt.Sprint(s.InProgress), fmt.Sprint(s.Closed)}},
			))
			return nil
		},
	}
}

func newTicketsCreateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "create SUBJECT...",
		Short: "Open a new ticket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			c, err := d.Registry.CreateTicket(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created ticket %s: %s\n", c.ID, c.Subject)
			return nil
		},
	}
}

// huhConfirmer asks through a huh form on the terminal.
type huhConfirmer struct{}

func (huhConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	ok := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).RunWithContext(ctx)
	return ok, err
}

func newTicketsCloseCommand(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "close ID",
		Short: "Close a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			var confirm registry.Confirmer = huhConfirmer{}
			if yes {
				confirm = registry.AlwaysConfirm
			}
			closed, err := d.Registry.CloseTicket(cmd.Context(), args[0], confirm)
			if err != nil {
				return err
			}
			if !closed {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Banner.State().Success)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newTicketsAssignCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "assign ID STAFF_ID",
		Short: "Assign an IT staff member to a ticket (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if err := d.Registry.AssignStaff(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Banner.State().Success)
			return nil
		},
	}
}
