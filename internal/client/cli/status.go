package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queued changes and sync position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			st, err := v.Status(cmd.Context())
			if err != nil {
				return err
			}

			count := func(n int, bad bool) string {
				s := strconv.Itoa(n)
				switch {
				case n == 0:
					return mutedStyle.Sprint(s)
				case bad:
					return errorStyle.Sprint(s)
				}
				return highlightStyle.Sprint(s)
			}
			orNever := func(s string) string {
				if s == "" {
					return mutedStyle.Sprint("never")
				}
				return s
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:        %s\n", infoStyle.Sprint(st.UserID))
			fmt.Fprintf(out, "Server:      %s\n", a.cfg.ServerURL)
			fmt.Fprintf(out, "Pending:     %s\n", count(st.Pending, false))
			fmt.Fprintf(out, "Conflicted:  %s\n", count(st.Conflict, true))
			fmt.Fprintf(out, "Failed:      %s\n", count(st.Failed, true))
			fmt.Fprintf(out, "Cursor:      %s\n", orNever(st.Cursor))
			fmt.Fprintf(out, "Last sync:   %s\n", orNever(st.LastSync))
			return nil
		},
	}
}
