/*
Package main is the entry point for rosterctl, a command line roster client.

rosterctl connects to a registrar over WebSocket (or, without a registrar URL, to an
in-process transport that confirms every login itself), drives the people model and
logs the roster notifications it receives.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chatroster/internal/app/people"
	"chatroster/internal/configs"
	"chatroster/internal/pkg/logx"
	"chatroster/internal/transport/memory"
	"chatroster/internal/transport/wsclient"
)

var (
	// Global flags
	registrarURL string
	token        string
	dialTimeout  time.Duration
	confirmDelay time.Duration

	cfg *configs.AppConfig
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rosterctl",
		Short: "Command line client for the Chatroster registrar",
		Long: `rosterctl joins the people roster of a Chatroster registrar.
Without --registrar it runs against an in-process transport that confirms logins locally.`,
		SilenceUsage:      true,
		PersistentPreRunE: initialize,
	}

	rootCmd.PersistentFlags().StringVar(&registrarURL, "registrar", "", "Registrar WebSocket URL (defaults to REGISTRAR_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Identity token sent as a bearer token when dialing")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "Registrar dial timeout")
	rootCmd.PersistentFlags().DurationVar(&confirmDelay, "confirm-delay", 200*time.Millisecond, "Confirmation delay of the in-process transport")

	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newWatchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initialize loads the configuration and the logger shared by every command.
func initialize(cmd *cobra.Command, args []string) error {
	loaded, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	logx.InitGlobalLogger(cfg.IsDevelopment())

	if registrarURL == "" {
		registrarURL = cfg.RegistrarURL
	}
	return nil
}

// connect builds a people model on top of the selected transport. The returned
// function releases the transport.
func connect(ctx context.Context) (*people.Model, func(), error) {
	if registrarURL == "" {
		transport := memory.New()
		transport.SetResponder(memory.AutoConfirm(confirmDelay))
		logx.Info("No registrar configured, using in-process transport.", "confirm_delay", confirmDelay.String())
		return people.NewModel(cfg, transport), func() { transport.Close() }, nil
	}

	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := wsclient.Dial(dialCtx, registrarURL, header)
	if err != nil {
		return nil, nil, err
	}
	return people.NewModel(cfg, client), func() { client.Close() }, nil
}
