package cli

import (
	"os"
	"os/signal"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

// newTrayCmd provides the "tray" command's exit-code contract. The
// system-tray UI itself is an out-of-scope external collaborator,
// referenced only through the interface this core consumes; this
// implementation honors auto_connect and blocks until the user requests
// exit, without pulling in a tray-icon toolkit the core has no other use
// for.
func newTrayCmd(configPath *string, newLogger func() log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run in the background, optionally auto-connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			sup := vpn.NewSupervisor(logger)

			cfg, err := loadConfig(*configPath)
			if err == nil && cfg.Preferences.AutoConnect && cfg.Username != "" {
				password, perr := promptPassword()
				if perr == nil {
					params := vpn.ConnectParams{
						Gateway:     vpn.GatewayEndpoint{Host: cfg.Gateway},
						Credential:  vpn.Credential{Username: cfg.Username, Password: password, Factor: vpn.MFAFactor{Method: cfg.Preferences.DuoMethod}},
						Hosts:       cfg.Hosts,
						Preferences: cfg.Preferences,
						Daemon:      true,
					}
					_ = sup.Connect(params)
					params.Credential.Zero()
				}
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
			<-sigChan
			os.Exit(0)
			return nil
		},
	}
}
