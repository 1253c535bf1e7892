package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatroster/internal/app/people"
	"chatroster/internal/pkg/logx"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the roster anonymously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			model, release, err := connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			runWatch(ctx, model)
			return nil
		},
	}
}

// runWatch logs the roster every time the registrar pushes a new list, until ctx is done.
func runWatch(ctx context.Context, model *people.Model) {
	defer model.Subscribe(people.EventRosterChanged, func(people.Event) {
		names := make([]string, 0)
		for _, p := range model.Roster() {
			if model.IsAnonymous(p) {
				continue
			}
			names = append(names, p.Name)
		}
		logx.Info("Roster changed.", "online", names)
	})()

	<-ctx.Done()
}
