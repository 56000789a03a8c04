package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Check the passphrase and cache the wrapped key for offline use",
		Long: `Unlocks the data key with your passphrase.

On the first unlock for an account a new data key is created and stored on
the server wrapped under the passphrase. Later unlocks fetch it back, or use
the locally cached copy when the server is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, created, err := a.unlockedVault(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintln(out, okMark()+" Created a new data key for this account")
				fmt.Fprintln(out, hintMark()+" Other devices unlock with the same passphrase")
				return nil
			}
			fmt.Fprintln(out, okMark()+" Unlocked")
			return nil
		},
	}
}
