package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

func NewUsersCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users (admin)",
	}
	cmd.AddCommand(newUsersListCommand(app), newUsersSetRoleCommand(app))
	return cmd
}

func newUsersListCommand(app *App) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			var users []helpdesk.User
			if role != "" {
				r, err := helpdesk.ParseRole(role)
				if err != nil {
					return err
				}
				users, err = d.API.ListUsersByRole(cmd.Context(), r)
				if err != nil {
					return err
				}
			} else {
				users, err = d.API.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{u.ID, u.Name, u.Email, string(u.Role)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Email", "Role"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Only list users with this role (user, it_staff, admin)")
	return cmd
}

func newUsersSetRoleCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role ID ROLE",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := helpdesk.ParseRole(args[1])
			if err != nil {
				return err
			}
			d, _, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if err := d.Registry.ChangeUserRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Banner.State().Success)
			return nil
		},
	}
}
