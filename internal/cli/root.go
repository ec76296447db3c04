package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

// NewRootCommand builds the top-level pmacs-vpn command tree: connect,
// disconnect, status, init, tray, run.
func NewRootCommand() *cobra.Command {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:           "pmacs-vpn",
		Short:         "Split-tunnel VPN client for the PMACS cluster gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to pmacs-vpn.toml (default: ./pmacs-vpn.toml)")

	newLogger := func() log.Logger {
		logger := log.NewLogfmtLogger(os.Stderr)
		if verbose {
			return level.NewFilter(logger, level.AllowDebug())
		}
		return level.NewFilter(logger, level.AllowInfo())
	}

	root.AddCommand(newConnectCmd(&configPath, newLogger))
	root.AddCommand(newDisconnectCmd(newLogger))
	root.AddCommand(newStatusCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newTrayCmd(&configPath, newLogger))
	root.AddCommand(newRunCmd(&configPath, newLogger))
	return root
}

// loadConfig resolves the pmacs-vpn.toml path (an explicit --config flag,
// else ./pmacs-vpn.toml, else ~/.pmacs-vpn/pmacs-vpn.toml) and loads it. Config file loading is an
// out-of-scope external collaborator; this is the thin shim the core's
// Connect/ConnectParams plain-value contract expects it to satisfy.
func loadConfig(explicitPath string) (*vpn.Config, error) {
	path := explicitPath
	if path == "" {
		path = "pmacs-vpn.toml"
	}
	if _, err := os.Stat(path); err != nil {
		if explicitPath != "" {
			return nil, vpn.NewError(vpn.ErrConfig, fmt.Sprintf("config file not found: %s", path), err)
		}
		home, _ := os.UserHomeDir()
		alt := filepath.Join(home, ".pmacs-vpn", "pmacs-vpn.toml")
		if _, err := os.Stat(alt); err != nil {
			return nil, vpn.NewError(vpn.ErrConfig, "no pmacs-vpn.toml found (./pmacs-vpn.toml or ~/.pmacs-vpn/pmacs-vpn.toml)", nil)
		}
		path = alt
	}
	return vpn.LoadConfigFile(path)
}
