package cli

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the passphrase protecting the data key",
		Long: `Re-wraps the data key under a new passphrase and uploads it.

Entries are not re-encrypted; other devices use the new passphrase on their
next unlock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := a.openVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			oldPass, err := a.Passphrase("Current passphrase: ")
			if err != nil {
				return err
			}
			defer clear(oldPass)
			newPass, err := a.Passphrase("New passphrase: ")
			if err != nil {
				return err
			}
			defer clear(newPass)
			confirm, err := a.Passphrase("Repeat new passphrase: ")
			if err != nil {
				return err
			}
			defer clear(confirm)

			if len(newPass) == 0 {
				return errors.New("new passphrase is empty")
			}
			if !bytes.Equal(newPass, confirm) {
				return errors.New("passphrases do not match")
			}

			if err := v.ChangePassphrase(ctx, oldPass, newPass); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okMark()+" Passphrase changed")
			return nil
		},
	}
}
