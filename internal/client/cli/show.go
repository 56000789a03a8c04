package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, _, err := a.unlockedVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			id, err := a.lookupID(ctx, v, args[0])
			if err != nil {
				return err
			}
			n, err := v.Get(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Sprint("id:"), n.ID)
			fmt.Fprintf(out, "%s %s  v%d  %s\n", mutedStyle.Sprint("meta:"), typeLabel(n.Type), n.Version, stateLabel(n.State))
			fmt.Fprintf(out, "%s %s\n\n", mutedStyle.Sprint("updated:"), n.UpdatedAt)
			fmt.Fprintln(out, n.Body)
			return nil
		},
	}
}
