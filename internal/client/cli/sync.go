package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/erauner12/journalsync/internal/client/api"
	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/erauner12/journalsync/internal/client/syncer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *App) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull changes from other devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, _, err := a.unlockedVault(ctx)
			if err != nil {
				return err
			}
			defer v.Close()

			stop := a.startSpinner(cmd.ErrOrStderr(), "Syncing...")
			rep, err := v.Sync(ctx)
			stop()

			out := cmd.OutOrStdout()
			switch {
			case api.IsOffline(err):
				fmt.Fprintln(out, failMark()+" Server unreachable; local changes stay queued")
				return err
			case errors.Is(err, localstore.ErrSyncInProgress):
				fmt.Fprintln(out, failMark()+" Another sync is already running")
				return err
			case err != nil:
				if rep != nil {
					printReport(out, rep)
				}
				return err
			}

			fmt.Fprintln(out, okMark()+" Sync complete")
			printReport(out, rep)
			return nil
		},
	}
}

func printReport(out io.Writer, rep *syncer.Report) {
	fmt.Fprintf(out, "  pushed %d, accepted %d\n", rep.Pushed, rep.Accepted)
	fmt.Fprintf(out, "  pulled %d over %d page(s), applied %d\n", rep.Pulled, rep.Pages, rep.Applied)
	if rep.Resolved > 0 {
		fmt.Fprintf(out, "  resolved %d conflict(s) by policy\n", rep.Resolved)
	}
	if rep.Retrying > 0 {
		fmt.Fprintf(out, "  %s %d change(s) will be retried\n", highlightStyle.Sprint("!"), rep.Retrying)
	}
	for _, id := range rep.Conflicted {
		fmt.Fprintf(out, "  %s conflict on %s\n", failMark(), highlightStyle.Sprint(shortID(id)))
	}
	if len(rep.Conflicted) > 0 {
		fmt.Fprintln(out, "  "+hintMark()+" Run "+infoStyle.Sprint("journal conflicts")+" to review")
	}
	for _, id := range rep.Failed {
		fmt.Fprintf(out, "  %s rejected by server: %s\n", failMark(), highlightStyle.Sprint(shortID(id)))
	}
	if n := len(rep.DecryptFailures); n > 0 {
		fmt.Fprintf(out, "  %s %d record(s) could not be decrypted\n", highlightStyle.Sprint("!"), n)
	}
}

// startSpinner shows progress on an interactive stderr unless logs are
// being printed there
func (a *App) startSpinner(w io.Writer, message string) func() {
	f, ok := w.(*os.File)
	if a.verbose || a.debug || !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()
	return s.Stop
}
