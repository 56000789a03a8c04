package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List local changes the server rejected as stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := a.unlockedVault(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			notes, err := v.Conflicts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(notes) == 0 {
				fmt.Fprintln(out, okMark()+" No conflicts")
				return nil
			}
			for _, n := range notes {
				body := preview(n.Body, 50)
				if n.Body == "" {
					body = mutedStyle.Sprint("(deleted)")
				}
				fmt.Fprintf(out, "%s  local v%d  server v%d  %s\n",
					highlightStyle.Sprint(shortID(n.ID)), n.Version, n.ServerVersion, body)
			}
			fmt.Fprintln(out, hintMark()+" Run "+infoStyle.Sprint("journal resolve <id> --keep local|server"))
			return nil
		},
	}
}
