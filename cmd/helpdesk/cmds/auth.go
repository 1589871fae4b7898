package cmds

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func NewLoginCommand(app *App) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token for the current profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				t, err := readToken()
				if err != nil {
					return err
				}
				token = t
			}
			d, err := app.NewDesk(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			id, err := d.Login(cmd.Context(), token)
			if err != nil {
				return errors.Wrap(err, "login")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", id.Name, id.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (prompted when omitted)")
	return cmd
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Token: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.Wrap(err, "read token")
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read token from stdin")
	}
	return strings.TrimSpace(line), nil
}

func NewLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := app.NewDesk(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if err := d.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func NewWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, id, err := app.OpenDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id.UserID, id.Name, id.Role)
			return nil
		},
	}
}
