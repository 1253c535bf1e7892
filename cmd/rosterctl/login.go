package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatroster/internal/app/people"
	"chatroster/internal/pkg/logx"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login NAME",
		Short: "Log in as NAME and stay online until interrupted",
		Long: `Log in as NAME, wait for the registrar to confirm the login and log every roster
change. On SIGINT or SIGTERM the user is logged out before exiting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			model, release, err := connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			return runLogin(ctx, model, args[0])
		},
	}
}

// runLogin logs in as name and blocks until ctx is done, then logs out.
// It returns early with the failure reason if the login is abandoned.
func runLogin(ctx context.Context, model *people.Model, name string) error {
	failed := make(chan error, 1)

	defer model.Subscribe(people.EventLoginCompleted, logEvent)()
	defer model.Subscribe(people.EventLogoutCompleted, logEvent)()
	defer model.Subscribe(people.EventRosterChanged, logEvent)()
	defer model.Subscribe(people.EventLoginFailed, func(ev people.Event) {
		logEvent(ev)
		select {
		case failed <- ev.Err:
		default:
		}
	})()

	if err := model.Login(name); err != nil {
		return fmt.Errorf("login as %q: %w", name, err)
	}

	select {
	case err := <-failed:
		return fmt.Errorf("login as %q: %w", name, err)
	case <-ctx.Done():
	}

	if model.Logout() {
		logx.Info("Logged out.", "name", name)
	}
	return nil
}

// logEvent writes one roster notification to the log.
func logEvent(ev people.Event) {
	entry := logx.Logger().Info().Str("event", string(ev.Kind))
	if ev.Person != nil {
		entry = entry.Str("client_id", ev.Person.ClientID).Str("name", ev.Person.Name)
	}
	if ev.Err != nil {
		entry = entry.Err(ev.Err)
	}
	entry.Msg("Roster notification")
}
