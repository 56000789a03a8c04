package cli

import (
	"errors"
	"fmt"

	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/spf13/cobra"
)

func (a *App) logoutCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Delete this device's local copy of the journal",
		Long: `Removes the local store for the current user. Entries already on the
server are kept. Refuses while changes are still queued unless --force is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			if err := v.Logout(ctx, force); err != nil {
				if errors.Is(err, localstore.ErrUnsyncedData) {
					fmt.Fprintln(out, failMark()+" Unsynced changes would be lost")
					fmt.Fprintln(out, hintMark()+" Run "+infoStyle.Sprint("journal sync")+" first, or pass --force")
				}
				return err
			}
			fmt.Fprintln(out, okMark()+" Local store removed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard unsynced changes")
	return cmd
}
