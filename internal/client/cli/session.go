package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/erauner12/journalsync/internal/client/api"
	"github.com/erauner12/journalsync/internal/client/vault"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var errNoTerminal = errors.New("no terminal for passphrase prompt; set JOURNAL_PASSPHRASE")

// openVault opens the local store of the configured user. The caller
// must Close the returned vault.
func (a *App) openVault(ctx context.Context) (*vault.Vault, error) {
	user, err := a.cfg.Identity()
	if err != nil {
		return nil, err
	}

	remote := api.New(a.cfg.ServerURL, a.cfg.Token, a.cfg.DebugSub)
	v := vault.New(a.cfg.DataDir, remote)
	v.Policy = a.cfg.ConflictPolicy()
	v.Iterations = a.cfg.KDFIterations

	if err := v.Open(ctx, user, false); err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return v, nil
}

// unlockedVault opens the store and unlocks it with a prompted passphrase
func (a *App) unlockedVault(ctx context.Context) (*vault.Vault, bool, error) {
	v, err := a.openVault(ctx)
	if err != nil {
		return nil, false, err
	}

	pass, err := a.Passphrase("Passphrase: ")
	if err != nil {
		v.Close()
		return nil, false, err
	}
	defer clear(pass)

	created, err := v.Unlock(ctx, pass)
	if err != nil {
		v.Close()
		return nil, false, err
	}
	log.Ctx(ctx).Debug().Bool("created", created).Msg("vault unlocked")
	return v, created, nil
}

func promptPassphrase(prompt string) ([]byte, error) {
	if p := os.Getenv("JOURNAL_PASSPHRASE"); p != "" {
		return []byte(p), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNoTerminal
	}

	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return pass, nil
}

// bodyFrom joins args, or reads stdin when there are none
func bodyFrom(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// matchID expands a unique id prefix against notes
func matchID(prefix string, notes []vault.Note) (string, error) {
	var found []string
	for _, n := range notes {
		if n.ID == prefix {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, prefix) {
			found = append(found, n.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", vault.ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d matches)", prefix, len(found))
	}
}

func (a *App) lookupID(ctx context.Context, v *vault.Vault, prefix string) (string, error) {
	notes, err := v.List(ctx)
	if err != nil {
		return "", err
	}
	return matchID(prefix, notes)
}
