package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/erauner12/journalsync/internal/client/keycustody"
	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/store/memstore"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serviceTransport calls the server's record service in-process
type serviceTransport struct {
	svc    *syncservice.RecordService
	owner  string
	pushes atomic.Int32
	pulls  atomic.Int32
	fail   error
}

func (t *serviceTransport) Push(ctx context.Context, items []syncx.PushItem) (syncx.PushResponse, error) {
	if t.fail != nil {
		return syncx.PushResponse{}, t.fail
	}
	t.pushes.Add(1)
	resp, err := t.svc.Push(ctx, t.owner, items)
	if err != nil {
		return syncx.PushResponse{}, err
	}
	return *resp, nil
}

func (t *serviceTransport) Pull(ctx context.Context, cursor string, limit int) (syncx.PullResponse, error) {
	if t.fail != nil {
		return syncx.PullResponse{}, t.fail
	}
	t.pulls.Add(1)
	resp, err := t.svc.Pull(ctx, t.owner, cursor, limit)
	if err != nil {
		return syncx.PullResponse{}, err
	}
	return *resp, nil
}

type device struct {
	syncer    *Syncer
	store     *localstore.Store
	transport *serviceTransport
}

// newDevice opens a fresh local store for owner sharing dek with its other devices
func newDevice(t *testing.T, svc *syncservice.RecordService, owner string, dek []byte) *device {
	t.Helper()
	st, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	custody := keycustody.New()
	custody.Install(dek)
	tr := &serviceTransport{svc: svc, owner: owner}

	return &device{
		store:     st,
		transport: tr,
		syncer: &Syncer{
			Transport: tr,
			Store:     st,
			Custody:   custody,
			Codec:     keycustody.NewCodec(custody),
			Policy:    PolicyManual,
		},
	}
}

func (d *device) write(t *testing.T, id string, version int64, body string) {
	t.Helper()
	payload, err := d.syncer.Codec.Encrypt([]byte(body))
	require.NoError(t, err)
	require.NoError(t, d.store.Outbox.Enqueue(context.Background(), localstore.OutboxEntry{
		RecordID:        id,
		Type:            "journal_entry",
		Version:         version,
		Payload:         payload,
		ClientUpdatedAt: "2025-11-03T10:00:00Z",
	}))
}

func (d *device) body(t *testing.T, id string) string {
	t.Helper()
	e, ok, err := d.store.Lookup(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "record %s missing", id)
	pt, err := d.syncer.Codec.Decrypt(e.Payload)
	require.NoError(t, err)
	return string(pt)
}

func setup(t *testing.T) (*syncservice.RecordService, []byte) {
	t.Helper()
	dek, err := keycustody.NewDEK()
	require.NoError(t, err)
	return syncservice.NewRecordService(memstore.New(), nil), dek
}

func TestRunCycle_PushThenPullOnOtherDevice(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)

	a.write(t, "r1", 1, "first")
	a.write(t, "r2", 1, "second")

	rep, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Accepted)

	counts, err := a.store.Outbox.Counts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts, "accepted entries are drained")

	rep, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Applied)
	assert.Equal(t, "first", b.body(t, "r1"))
	assert.Equal(t, "second", b.body(t, "r2"))
}

func TestRunCycle_ConflictParksEntry(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)

	a.write(t, "r1", 1, "from a")
	_, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)

	b.write(t, "r1", 1, "from b")
	rep, err := b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, rep.Conflicted)

	e, ok, err := b.store.Outbox.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, localstore.StateConflicted, e.State)
	assert.Equal(t, int64(1), e.ServerVersion)

	// the server copy was still pulled into the mirror
	rec, ok, err := b.store.Records.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	pt, err := b.syncer.Codec.Decrypt(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, "from a", string(pt))

	// never blindly retried
	pushes := b.transport.pushes.Load()
	_, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, pushes, b.transport.pushes.Load())
}

func TestResolve_KeepLocal(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)

	a.write(t, "r1", 1, "from a")
	_, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)

	b.syncer.Policy = PolicyKeepLocal
	b.write(t, "r1", 1, "from b")
	rep, err := b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Resolved)

	_, ok, err := b.store.Outbox.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok, "re-enqueued entry should be pushed in the same cycle")

	_, err = a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from b", a.body(t, "r1"))

	rec, _, err := a.store.Records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
}

func TestResolve_KeepServer(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)

	a.write(t, "r1", 1, "from a")
	_, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)

	b.write(t, "r1", 1, "from b")
	_, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)

	require.NoError(t, b.syncer.Resolve(ctx, "r1", PolicyKeepServer))
	assert.Equal(t, "from a", b.body(t, "r1"))

	assert.Error(t, b.syncer.Resolve(ctx, "r1", PolicyKeepServer), "nothing left to resolve")
	assert.Error(t, b.syncer.Resolve(ctx, "r1", PolicyManual))
}

func TestRunCycle_ForbiddenMarksFailed(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	alice := newDevice(t, svc, "alice", dek)
	bob := newDevice(t, svc, "bob", dek)

	alice.write(t, "r1", 1, "mine")
	_, err := alice.syncer.RunCycle(ctx)
	require.NoError(t, err)

	bob.write(t, "r1", 99, "hijack")
	rep, err := bob.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, rep.Failed)

	e, ok, err := bob.store.Outbox.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, localstore.StateFailed, e.State)
	assert.Equal(t, string(syncx.ReasonForbidden), e.Reason)

	// bob never sees alice's record
	_, ok, err = bob.store.Records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunCycle_PaginationAndCursor(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	a.syncer.BatchSize = 3

	for i := 0; i < 7; i++ {
		a.write(t, fmt.Sprintf("r%d", i), 1, fmt.Sprintf("body %d", i))
	}
	rep, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Accepted)
	assert.Equal(t, int32(3), a.transport.pushes.Load())

	b := newDevice(t, svc, "alice", dek)
	b.syncer.PageSize = 3
	rep, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Pages)
	assert.Equal(t, 7, rep.Pulled)

	// cursor sits on the last full page's boundary
	cursor, err := b.store.Meta.Cursor(ctx)
	require.NoError(t, err)
	pos, ok := syncx.DecodeCursor(cursor)
	require.True(t, ok, "cursor %q", cursor)
	assert.Equal(t, "r5", pos.RecordID)

	// a second cycle only re-reads the trailing partial page
	rep, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pages)
	assert.Equal(t, 1, rep.Pulled)
}

func TestRunCycle_LocalEditOfCursorRecordKeepsRemoteChanges(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)
	a.syncer.PageSize = 2

	for i := 0; i < 3; i++ {
		a.write(t, fmt.Sprintf("r%d", i), 1, fmt.Sprintf("body %d", i))
	}
	_, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	cursor, err := a.store.Meta.Cursor(ctx)
	require.NoError(t, err)
	pos, ok := syncx.DecodeCursor(cursor)
	require.True(t, ok)
	require.Equal(t, "r1", pos.RecordID)

	b.write(t, "b1", 1, "from b 1")
	b.write(t, "b2", 1, "from b 2")
	_, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)

	// editing the cursor record pushes it past b's records before the pull
	a.write(t, "r1", 2, "body 1 edited")
	rep, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
	assert.GreaterOrEqual(t, rep.Applied, 2)

	assert.Equal(t, "from b 1", a.body(t, "b1"))
	assert.Equal(t, "from b 2", a.body(t, "b2"))
	assert.Equal(t, "body 1 edited", a.body(t, "r1"))
}

func TestRunCycle_DecryptFailureSkipped(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()

	other, err := keycustody.NewDEK()
	require.NoError(t, err)
	rogue := newDevice(t, svc, "alice", other)
	rogue.write(t, "bad", 1, "wrong key")
	_, err = rogue.syncer.RunCycle(ctx)
	require.NoError(t, err)

	a := newDevice(t, svc, "alice", dek)
	a.write(t, "good", 1, "fine")
	rep, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, rep.DecryptFailures)

	_, ok, err := a.store.Records.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "fine", a.body(t, "good"))
}

func TestRunCycle_TombstonePropagates(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	b := newDevice(t, svc, "alice", dek)

	a.write(t, "r1", 1, "doomed")
	_, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	_, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)

	require.NoError(t, a.store.Outbox.Enqueue(ctx, localstore.OutboxEntry{
		RecordID: "r1", Type: "journal_entry", Version: 2,
		ClientUpdatedAt: "2025-11-04T10:00:00Z", Deleted: true,
	}))
	_, err = a.syncer.RunCycle(ctx)
	require.NoError(t, err)

	_, err = b.syncer.RunCycle(ctx)
	require.NoError(t, err)
	rec, ok, err := b.store.Records.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Deleted)
	assert.Equal(t, int64(2), rec.Version)
}

func TestRunCycle_OfflineKeepsOutbox(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)
	a.write(t, "r1", 1, "queued")

	offline := errors.New("server unreachable")
	a.transport.fail = offline
	_, err := a.syncer.RunCycle(ctx)
	assert.ErrorIs(t, err, offline)

	e, ok, err := a.store.Outbox.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, localstore.StatePending, e.State)

	a.transport.fail = nil
	rep, err := a.syncer.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Accepted)
}

func TestRunCycle_RequiresKeyAndExclusiveLock(t *testing.T) {
	svc, dek := setup(t)
	ctx := context.Background()
	a := newDevice(t, svc, "alice", dek)

	unlock, err := a.store.TryLockSync(ctx)
	require.NoError(t, err)
	_, err = a.syncer.RunCycle(ctx)
	assert.ErrorIs(t, err, localstore.ErrSyncInProgress)
	unlock()

	a.syncer.Custody.Clear()
	_, err = a.syncer.RunCycle(ctx)
	assert.ErrorIs(t, err, keycustody.ErrNoKey)
}

func TestRunCycle_CancelledBetweenBatches(t *testing.T) {
	svc, dek := setup(t)
	a := newDevice(t, svc, "alice", dek)
	a.syncer.BatchSize = 1
	a.write(t, "r1", 1, "x")
	a.write(t, "r2", 1, "y")

	ctx, cancel := context.WithCancel(context.Background())
	a.syncer.Transport = &cancelOnSecondPush{Transport: a.transport, cancel: cancel}

	_, err := a.syncer.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	bg := context.Background()
	_, ok, err := a.store.Outbox.Get(bg, "r1")
	require.NoError(t, err)
	assert.False(t, ok, "first batch was acknowledged")
	e, ok, err := a.store.Outbox.Get(bg, "r2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, localstore.StatePending, e.State)
}

// cancelOnSecondPush simulates the user aborting between batches
type cancelOnSecondPush struct {
	Transport
	cancel context.CancelFunc
	n      int
}

func (c *cancelOnSecondPush) Push(ctx context.Context, items []syncx.PushItem) (syncx.PushResponse, error) {
	c.n++
	if c.n == 2 {
		c.cancel()
		return syncx.PushResponse{}, ctx.Err()
	}
	return c.Transport.Push(ctx, items)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyManual, p)

	p, err = ParsePolicy("keep-local")
	require.NoError(t, err)
	assert.Equal(t, PolicyKeepLocal, p)

	_, err = ParsePolicy("merge")
	assert.Error(t, err)
}
