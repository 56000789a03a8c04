package cli

import (
	"fmt"

	"github.com/erauner12/journalsync/internal/client/api"
	"github.com/spf13/cobra"
)

func (a *App) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the sync server's protocol limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api.New(a.cfg.ServerURL, a.cfg.Token, a.cfg.DebugSub)
			info, err := c.Info(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:          %s\n", a.cfg.ServerURL)
			fmt.Fprintf(out, "API version:     %s\n", info.APIVersion)
			fmt.Fprintf(out, "Server time:     %s\n", info.ServerTime)
			fmt.Fprintf(out, "Max push batch:  %d\n", info.Limits.MaxPushBatch)
			fmt.Fprintf(out, "Max pull page:   %d\n", info.Limits.MaxPullLimit)
			return nil
		},
	}
}
