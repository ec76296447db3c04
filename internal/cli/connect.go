package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

func newConnectCmd(configPath *string, newLogger func() log.Logger) *cobra.Command {
	var (
		username      string
		savePassword  bool
		forgetPwd     bool
		daemon        bool
		daemonChild   bool
		keepAlive     bool
		background    bool
		duoMethodFlag string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authenticate and establish the split tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if !requirePrivilege() {
				err := vpn.NewError(vpn.ErrPrivilege, privilegeHintForPlatform(), nil)
				os.Exit(connectExitCode(err))
			}

			sup := vpn.NewSupervisor(logger)

			if daemonChild {
				prefs, err := handoffPreferences(*configPath)
				if err != nil {
					os.Exit(connectExitCode(err))
				}
				err = sup.ResumeFromHandoff(prefs)
				os.Exit(connectExitCode(err))
				return nil
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				os.Exit(connectExitCode(err))
			}

			if username == "" {
				username = cfg.Username
			}
			if username == "" {
				u, err := promptLine("Username: ")
				if err != nil {
					os.Exit(connectExitCode(vpn.NewError(vpn.ErrConfigNoInteractiveInput, "username not supplied and no TTY to prompt", err)))
				}
				username = u
			}

			password, err := promptPassword()
			if err != nil {
				os.Exit(connectExitCode(vpn.NewError(vpn.ErrConfigNoInteractiveInput, "password not supplied and no TTY to prompt", err)))
			}

			duoMethod := cfg.Preferences.DuoMethod
			if duoMethodFlag != "" {
				duoMethod = vpn.DuoMethod(duoMethodFlag)
			}
			factor := vpn.MFAFactor{Method: duoMethod}
			if duoMethod == vpn.DuoPasscode {
				code, err := promptLine("Passcode: ")
				if err != nil {
					os.Exit(connectExitCode(vpn.NewError(vpn.ErrConfigNoInteractiveInput, "passcode not supplied and no TTY to prompt", err)))
				}
				factor.Passcode = code
			}

			prefs := cfg.Preferences
			prefs.DuoMethod = duoMethod
			if keepAlive {
				prefs.AutoReconnect = true
			}

			params := vpn.ConnectParams{
				Gateway:     vpn.GatewayEndpoint{Host: cfg.Gateway},
				Credential:  vpn.Credential{Username: username, Password: password, Factor: factor},
				Hosts:       cfg.Hosts,
				Preferences: prefs,
				Daemon:      daemon || background,
			}

			err = sup.Connect(params)
			params.Credential.Zero()
			os.Exit(connectExitCode(err))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().BoolVar(&savePassword, "save-password", false, "accepted; has no effect (no password is stored)")
	cmd.Flags().BoolVar(&forgetPwd, "forget-password", false, "accepted; has no effect (no password is stored)")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "detach into the background after authenticating")
	cmd.Flags().BoolVar(&keepAlive, "keep-alive", false, "enable automatic reconnection")
	cmd.Flags().BoolVar(&background, "background", false, "alias for --daemon")
	cmd.Flags().StringVar(&duoMethodFlag, "duo-method", "", "push|sms|call|passcode")
	cmd.Flags().BoolVar(&daemonChild, "daemon-child", false, "internal: marks the spawned daemon child process")
	_ = cmd.Flags().MarkHidden("daemon-child")

	return cmd
}

// handoffPreferences reconstructs Preferences for the daemon child from
// the same config file the parent loaded, since AuthHandoff itself only
// carries a narrow preferences subset (duo_method) alongside the auth
// material. That subset is not consulted here: every [preferences] value
// is read fresh from disk.
func handoffPreferences(configPath string) (vpn.Preferences, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return vpn.Preferences{}, err
	}
	return cfg.Preferences, nil
}

// promptLine reads one line from stdin when stdin is a TTY, and fails
// with an error (never a panic) when it is not: non-interactive
// invocation must not abort via a runtime panic on missing input.
func promptLine(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no TTY available for interactive prompt")
	}
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword reads a password from the controlling terminal without
// echoing it, per the Credential contract that secrets must never be
// logged or displayed.
func promptPassword() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no TTY available for interactive prompt")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
