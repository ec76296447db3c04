package cli

import (
	"os"
	"os/exec"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

func newRunCmd(configPath *string, newLogger func() log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run -- <cmd...>",
		Short:              "Connect, run a command with the tunnel up, then auto-disconnect",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dashIdx := 0
			for i, a := range args {
				if a == "--" {
					dashIdx = i + 1
					break
				}
			}
			command := args[dashIdx:]
			if len(command) == 0 {
				os.Exit(1)
				return nil
			}

			logger := newLogger()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				os.Exit(connectExitCode(err))
			}

			password, err := promptPassword()
			if err != nil {
				os.Exit(connectExitCode(vpn.NewError(vpn.ErrConfigNoInteractiveInput, "password not supplied and no TTY to prompt", err)))
			}

			sup := vpn.NewSupervisor(logger)
			params := vpn.ConnectParams{
				Gateway:     vpn.GatewayEndpoint{Host: cfg.Gateway},
				Credential:  vpn.Credential{Username: cfg.Username, Password: password, Factor: vpn.MFAFactor{Method: cfg.Preferences.DuoMethod}},
				Hosts:       cfg.Hosts,
				Preferences: cfg.Preferences,
				Daemon:      true,
			}
			err = sup.Connect(params)
			params.Credential.Zero()
			if err != nil {
				os.Exit(connectExitCode(err))
			}

			waitUntilConnected(sup, 15*time.Second)

			exe := exec.Command(command[0], command[1:]...)
			exe.Stdin = os.Stdin
			exe.Stdout = os.Stdout
			exe.Stderr = os.Stderr
			runErr := exe.Run()

			_ = sup.Disconnect()

			os.Exit(exitCodeOf(runErr))
			return nil
		},
	}
	return cmd
}

// waitUntilConnected polls Status until PersistentState reports a live
// tunnel or the timeout elapses, since the daemon spawned by Connect in
// daemon mode takes over asynchronously.
func waitUntilConnected(sup *vpn.Supervisor, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if result, err := sup.Status(); err == nil && result.Connected {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}
