package cli

import (
	"fmt"

	"github.com/erauner12/journalsync/internal/client/vault"
	"github.com/spf13/cobra"
)

func (a *App) addCmd() *cobra.Command {
	var prayer bool

	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Write a new entry (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := bodyFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			v, _, err := a.unlockedVault(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			typ := vault.TypeJournal
			if prayer {
				typ = vault.TypePrayer
			}
			id, err := v.Add(cmd.Context(), typ, body)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), okMark()+" Added "+highlightStyle.Sprint(id))
			return nil
		},
	}
	cmd.Flags().BoolVar(&prayer, "prayer", false, "store as a prayer request")
	return cmd
}
