package cli

import (
	"fmt"

	"github.com/erauner12/journalsync/internal/client/syncer"
	"github.com/spf13/cobra"
)

func (a *App) resolveCmd() *cobra.Command {
	var keep string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Settle a conflict by keeping the local or the server version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var choice syncer.ConflictPolicy
			switch keep {
			case "local":
				choice = syncer.PolicyKeepLocal
			case "server":
				choice = syncer.PolicyKeepServer
			default:
				return fmt.Errorf("--keep must be local or server, got %q", keep)
			}

			v, _, err := a.unlockedVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			conflicts, err := v.Conflicts(ctx)
			if err != nil {
				return err
			}
			id, err := matchID(args[0], conflicts)
			if err != nil {
				return err
			}
			if err := v.Resolve(ctx, id, choice); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if choice == syncer.PolicyKeepServer {
				fmt.Fprintln(out, okMark()+" Discarded local change to "+highlightStyle.Sprint(shortID(id)))
				return nil
			}
			fmt.Fprintln(out, okMark()+" Local version of "+highlightStyle.Sprint(shortID(id))+" queued")
			fmt.Fprintln(out, hintMark()+" Run "+infoStyle.Sprint("journal sync")+" to push it")
			return nil
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "which side wins: local or server")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}
