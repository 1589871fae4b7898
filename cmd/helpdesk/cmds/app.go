package cmds

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/helpdesk/pkg/client"
	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/go-go-golems/helpdesk/pkg/logging"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/session"
)

// App carries resolved settings from the root command to subcommands.
type App struct {
	Settings  config.Settings
	logCloser io.Closer
}

func (a *App) Init(cmd *cobra.Command) error {
	s, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.Settings = s
	closer, err := logging.Init(s.Log)
	if err != nil {
		return err
	}
	a.logCloser = closer
	log.Debug().Str("api_url", s.APIURL).Str("profile", s.Profile).Msg("settings loaded")
	return nil
}

func (a *App) Shutdown() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// NewDesk builds a desk without touching the network.
func (a *App) NewDesk(ctx context.Context, notifier notify.Notifier) (*client.Desk, error) {
	return client.New(ctx, client.Options{Settings: a.Settings, Notifier: notifier})
}

// OpenDesk builds a desk and resolves the stored credential. Realtime is
// not started; one-shot commands only need REST.
func (a *App) OpenDesk(ctx context.Context) (*client.Desk, session.Identity, error) {
	d, err := a.NewDesk(ctx, nil)
	if err != nil {
		return nil, session.Identity{}, err
	}
	id, err := d.Session.Load(ctx, d.API)
	if err != nil {
		_ = d.Close()
		if errors.Is(err, session.ErrNoCredential) {
			return nil, session.Identity{}, errors.New("not logged in, run `helpdesk login` first")
		}
		return nil, session.Identity{}, err
	}
	return d, id, nil
}
