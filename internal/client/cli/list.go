package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/erauner12/journalsync/internal/client/vault"
	"github.com/spf13/cobra"
)

type listItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Body      string `json:"body"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updatedAt"`
	State     string `json:"state"`
}

func (a *App) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List entries, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := a.unlockedVault(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			notes, err := v.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				items := make([]listItem, 0, len(notes))
				for _, n := range notes {
					items = append(items, listItem{n.ID, n.Type, n.Body, n.Version, n.UpdatedAt, n.State})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			if len(notes) == 0 {
				fmt.Fprintln(out, mutedStyle.Sprint("No entries yet"))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, n := range notes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(n.ID), typeLabel(n.Type), n.UpdatedAt, stateLabel(n.State), preview(n.Body, 50))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func typeLabel(typ string) string {
	switch typ {
	case vault.TypeJournal:
		return "journal"
	case vault.TypePrayer:
		return "prayer"
	}
	return typ
}

func stateLabel(state string) string {
	switch state {
	case "synced":
		return mutedStyle.Sprint(state)
	case "conflicted", "failed":
		return errorStyle.Sprint(state)
	}
	return highlightStyle.Sprint(state)
}
