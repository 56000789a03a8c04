// Package cli implements the journal command-line client
package cli

import (
	"io"
	"time"

	"github.com/erauner12/journalsync/internal/client/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// App carries the state shared by every subcommand
type App struct {
	// Passphrase prompts for a secret; defaults to JOURNAL_PASSPHRASE or the terminal
	Passphrase func(prompt string) ([]byte, error)

	configPath string
	verbose    bool
	debug      bool
	overrides  flagValues

	cfg *config.Config
}

type flagValues struct {
	server   string
	dataDir  string
	token    string
	debugSub string
	user     string
	policy   string
}

// New returns an App reading passphrases from the environment or terminal
func New() *App {
	return &App{Passphrase: promptPassphrase}
}

// Command builds the root command with all subcommands attached
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "journal",
		Short: "End-to-end encrypted journal with offline sync",
		Long: `journal keeps journal entries and prayer requests encrypted on this device
and syncs them through a server that only ever sees ciphertext.

Edits work offline; run 'journal sync' to push queued changes and pull
changes made on other devices.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a JSON config file")
	pf.StringVar(&a.overrides.server, "server", "", "sync server URL")
	pf.StringVar(&a.overrides.dataDir, "data-dir", "", "directory for local stores")
	pf.StringVar(&a.overrides.token, "token", "", "bearer token for the sync server")
	pf.StringVar(&a.overrides.debugSub, "debug-sub", "", "subject to send as X-Debug-Sub (dev servers)")
	pf.StringVar(&a.overrides.user, "user", "", "local user id (defaults to the token subject)")
	pf.StringVar(&a.overrides.policy, "policy", "", "conflict policy: manual, keep-server or keep-local")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVarP(&a.debug, "debug", "d", false, "enable debug output")

	root.AddCommand(
		a.unlockCmd(),
		a.addCmd(),
		a.listCmd(),
		a.showCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.syncCmd(),
		a.conflictsCmd(),
		a.resolveCmd(),
		a.passwdCmd(),
		a.logoutCmd(),
		a.statusCmd(),
		a.infoCmd(),
	)
	return root
}

// setup loads config (defaults, file, env, then flags) and installs the logger
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	for name, apply := range map[string]func(){
		"server":    func() { cfg.ServerURL = a.overrides.server },
		"data-dir":  func() { cfg.DataDir = a.overrides.dataDir },
		"token":     func() { cfg.Token = a.overrides.token },
		"debug-sub": func() { cfg.DebugSub = a.overrides.debugSub },
		"user":      func() { cfg.UserID = a.overrides.user },
		"policy":    func() { cfg.Policy = a.overrides.policy },
	} {
		if flags.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, a.verbose, a.debug)
	cmd.SetContext(logger.WithContext(cmd.Context()))
	logger.Debug().Str("server", cfg.ServerURL).Str("data_dir", cfg.DataDir).Msg("configuration loaded")
	return nil
}

func newLogger(w io.Writer, configured string, verbose, debug bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(configured)
	if err != nil || configured == "" {
		level = zerolog.WarnLevel
	}
	if verbose && level > zerolog.InfoLevel {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
