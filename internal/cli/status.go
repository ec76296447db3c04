package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a tunnel is currently running",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := vpn.NewSupervisor(nil)
			result, err := sup.Status()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(result.State)
			} else {
				printStatus(result)
			}

			switch {
			case result.Connected:
				os.Exit(0)
			case result.Stale:
				os.Exit(2)
			default:
				os.Exit(1)
			}
			return nil
		},
	}
	// --json emits the persisted state for scripting in place of the
	// plain-text summary; the exit-code contract is unchanged.
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit persisted state as JSON")
	return cmd
}

func printStatus(result *vpn.StatusResult) {
	switch {
	case result.Connected:
		fmt.Printf("connected: interface=%s gateway=%s since=%s\n",
			result.State.InterfaceName, result.State.Gateway, result.State.ConnectedAt.Format("2006-01-02T15:04:05Z07:00"))
	case result.Stale:
		fmt.Println("stale: tunnel process is no longer running; state was not cleaned up")
	default:
		fmt.Println("not connected")
	}
}
