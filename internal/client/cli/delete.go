package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an entry on every device",
		Args:    cobra.ExactArgs(1),
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
			if err := v.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okMark()+" Deleted "+highlightStyle.Sprint(shortID(id)))
			return nil
		},
	}
}
