package cli

import (
	"os"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/drivaslab/pmacs-vpn/vpn"
)

func newDisconnectCmd(newLogger func() log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Tear down a running tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup := vpn.NewSupervisor(newLogger())
			err := sup.Disconnect()
			if err != nil {
				os.Exit(1)
			}
			os.Exit(0)
			return nil
		},
	}
}
