package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/client/api"
	"github.com/erauner12/journalsync/internal/client/keycustody"
	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/erauner12/journalsync/internal/client/vault"
	"github.com/erauner12/journalsync/internal/httpapi"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/store/memstore"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ms := memstore.New()
	srv := &httpapi.Server{
		Records: syncservice.NewRecordService(ms, nil),
		Escrow:  escrowservice.New(ms),
		Users:   auth.SubjectResolver,
	}
	ts := httptest.NewServer(srv.Routes(auth.JWTCfg{DevMode: true}))
	t.Cleanup(ts.Close)
	return ts
}

// device is one installation of the CLI: its own data dir, same account
type device struct {
	t       *testing.T
	server  string
	dataDir string
	sub     string
	pass    []string
}

func newDevice(t *testing.T, server, sub, pass string) *device {
	t.Helper()
	for _, k := range []string{"JOURNAL_SERVER_URL", "JOURNAL_DATA_DIR", "JOURNAL_TOKEN", "JOURNAL_DEBUG_SUB",
		"JOURNAL_USER_ID", "JOURNAL_CONFLICT_POLICY", "JOURNAL_LOG_LEVEL", "JOURNAL_PASSPHRASE"} {
		t.Setenv(k, "")
	}
	t.Setenv("JOURNAL_KDF_ITERATIONS", strconv.Itoa(keycustody.MinIterations))
	return &device{t: t, server: server, dataDir: t.TempDir(), sub: sub, pass: []string{pass}}
}

// run executes one CLI invocation. Each prompt consumes the next
// passphrase; the last one repeats.
func (d *device) run(stdin string, args ...string) (string, error) {
	d.t.Helper()
	prompts := 0
	a := New()
	a.Passphrase = func(string) ([]byte, error) {
		p := d.pass[min(prompts, len(d.pass)-1)]
		prompts++
		return []byte(p), nil
	}

	cmd := a.Command()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", d.server, "--data-dir", d.dataDir, "--debug-sub", d.sub}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (d *device) mustRun(args ...string) string {
	d.t.Helper()
	out, err := d.run("", args...)
	require.NoError(d.t, err, out)
	return out
}

func (d *device) list() []listItem {
	d.t.Helper()
	var items []listItem
	require.NoError(d.t, json.Unmarshal([]byte(d.mustRun("list", "--json")), &items))
	return items
}

func addedID(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	return fields[len(fields)-1]
}

func TestCLI_TwoDevices(t *testing.T) {
	ts := newServer(t)
	laptop := newDevice(t, ts.URL, "alice", "correct horse")
	phone := newDevice(t, ts.URL, "alice", "correct horse")

	assert.Contains(t, laptop.mustRun("unlock"), "Created a new data key")
	assert.Contains(t, phone.mustRun("unlock"), "Unlocked")

	id := addedID(t, laptop.mustRun("add", "grateful", "for", "rain"))
	items := laptop.list()
	require.Len(t, items, 1)
	assert.Equal(t, "grateful for rain", items[0].Body)
	assert.Equal(t, "pending", items[0].State)

	out := laptop.mustRun("sync")
	assert.Contains(t, out, "Sync complete")
	assert.Contains(t, out, "pushed 1, accepted 1")

	out = phone.mustRun("sync")
	assert.Contains(t, out, "pulled 1")
	items = phone.list()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "synced", items[0].State)

	// short ids from `list` work everywhere
	assert.Contains(t, phone.mustRun("show", id[:8]), "grateful for rain")

	phone.mustRun("edit", id[:8], "grateful for sun")
	phone.mustRun("sync")
	laptop.mustRun("sync")
	assert.Contains(t, laptop.mustRun("show", id), "grateful for sun")

	laptop.mustRun("delete", id)
	laptop.mustRun("sync")
	phone.mustRun("sync")
	assert.Empty(t, phone.list())

	status := phone.mustRun("status")
	assert.Contains(t, status, "User:        alice")
	assert.Contains(t, status, "Pending:     0")
	assert.NotContains(t, status, "Last sync:   never")
}

func TestCLI_AddFromStdinAsPrayer(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "alice", "pw")

	out, err := d.run("for Sam's surgery\n", "add", "--prayer")
	require.NoError(t, err)
	assert.Contains(t, out, "Added")

	items := d.list()
	require.Len(t, items, 1)
	assert.Equal(t, "prayer_request", items[0].Type)
	assert.Equal(t, "for Sam's surgery", items[0].Body)
}

func TestCLI_ConflictAndResolve(t *testing.T) {
	ts := newServer(t)
	a := newDevice(t, ts.URL, "alice", "pw")
	b := newDevice(t, ts.URL, "alice", "pw")

	id := addedID(t, a.mustRun("add", "draft"))
	a.mustRun("sync")
	b.mustRun("sync")

	a.mustRun("edit", id, "from a")
	b.mustRun("edit", id, "from b")
	a.mustRun("sync")

	out := b.mustRun("sync")
	assert.Contains(t, out, "conflict on "+id[:8])

	out = b.mustRun("conflicts")
	assert.Contains(t, out, "local v2  server v2")
	assert.Contains(t, out, "from b")

	_, err := b.run("", "resolve", id[:8], "--keep", "sideways")
	require.Error(t, err)

	assert.Contains(t, b.mustRun("resolve", id[:8], "--keep", "local"), "queued")
	assert.Contains(t, b.mustRun("conflicts"), "No conflicts")
	b.mustRun("sync")

	a.mustRun("sync")
	assert.Contains(t, a.mustRun("show", id), "from b")
}

func TestCLI_WrongPassphrase(t *testing.T) {
	ts := newServer(t)
	first := newDevice(t, ts.URL, "alice", "right")
	first.mustRun("unlock")

	second := newDevice(t, ts.URL, "alice", "wrong")
	_, err := second.run("", "unlock")
	require.ErrorIs(t, err, keycustody.ErrWrongPassphrase)
}

func TestCLI_Passwd(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "alice", "old")
	d.mustRun("add", "secret")
	d.mustRun("sync")

	d.pass = []string{"old", "new", "typo"}
	_, err := d.run("", "passwd")
	require.Error(t, err)

	d.pass = []string{"old", "new", "new"}
	assert.Contains(t, d.mustRun("passwd"), "Passphrase changed")

	other := newDevice(t, ts.URL, "alice", "new")
	other.mustRun("sync")
	require.Len(t, other.list(), 1)

	other.pass = []string{"old"}
	_, err = other.run("", "unlock")
	require.ErrorIs(t, err, keycustody.ErrWrongPassphrase)
}

func TestCLI_OfflineEditsStayQueued(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "alice", "pw")
	d.mustRun("unlock")

	ts.Close()

	// the wrapped key cached by the first unlock is enough offline
	d.mustRun("add", "written on a plane")
	out, err := d.run("", "sync")
	require.Error(t, err)
	assert.True(t, api.IsOffline(err), "got %v", err)
	assert.Contains(t, out, "Server unreachable")
	assert.Contains(t, d.mustRun("status"), "Pending:     1")
}

func TestCLI_LogoutRefusesUnsynced(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "alice", "pw")
	d.mustRun("add", "not yet pushed")

	out, err := d.run("", "logout")
	require.ErrorIs(t, err, localstore.ErrUnsyncedData)
	assert.Contains(t, out, "--force")

	assert.Contains(t, d.mustRun("logout", "--force"), "Local store removed")
	assert.Contains(t, d.mustRun("status"), "Pending:     0")
}

func TestCLI_Info(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "alice", "pw")

	out := d.mustRun("info")
	assert.Contains(t, out, "Max push batch:  100")
	assert.Contains(t, out, "Max pull page:   500")
}

func TestCLI_RequiresCredentials(t *testing.T) {
	ts := newServer(t)
	d := newDevice(t, ts.URL, "", "pw")

	_, err := d.run("", "status")
	require.Error(t, err)
}

func TestMatchID(t *testing.T) {
	notes := []vault.Note{{ID: "abc123"}, {ID: "abd456"}, {ID: "xyz"}}

	got, err := matchID("abc", notes)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	_, err = matchID("ab", notes)
	assert.ErrorContains(t, err, "ambiguous")

	_, err = matchID("q", notes)
	assert.ErrorIs(t, err, vault.ErrNotFound)

	got, err = matchID("xyz", notes)
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)
}
