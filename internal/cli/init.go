package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

const defaultConfigTemplate = `[vpn]
gateway = "vpn.example.org"
# username = "jdoe"
hosts = []

[preferences]
duo_method = "push"
auto_reconnect = true
max_reconnect_attempts = 5
reconnect_delay_secs = 5
inbound_timeout_secs = 45
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default pmacs-vpn.toml and create the state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := vpn.StateDir(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(0)
				return nil
			}

			if _, err := os.Stat("pmacs-vpn.toml"); os.IsNotExist(err) {
				if err := os.WriteFile("pmacs-vpn.toml", []byte(defaultConfigTemplate), 0o600); err != nil {
					fmt.Fprintln(os.Stderr, err)
				} else {
					fmt.Println("wrote pmacs-vpn.toml")
				}
			} else {
				fmt.Println("pmacs-vpn.toml already exists, leaving it untouched")
			}
			os.Exit(0)
			return nil
		},
	}
}
