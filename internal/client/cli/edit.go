package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> [text...]",
		Short: "Replace the text of an entry (reads stdin when no text is given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			body, err := bodyFrom(args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}

			v, _, err := a.unlockedVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			id, err := a.lookupID(ctx, v, args[0])
			if err != nil {
				return err
			}
			if err := v.Update(ctx, id, body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okMark()+" Updated "+highlightStyle.Sprint(shortID(id)))
			return nil
		},
	}
}
