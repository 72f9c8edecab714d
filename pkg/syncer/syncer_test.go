package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harrisonrobin/taskboard/pkg/events"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/queue"
	"github.com/harrisonrobin/taskboard/pkg/store"
)

var rep = model.Actor{ID: "rep-1", Role: model.RoleEmployee, TeamID: "north", DepartmentType: "retail"}

// flakyStore fails Create for the listed titles.
type flakyStore struct {
	*store.Memory
	failTitles map[string]bool
	fetchErr   error
}

func (f *flakyStore) Fetch(ctx context.Context, filter model.Filter) ([]model.Task, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.Memory.Fetch(ctx, filter)
}

func (f *flakyStore) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if f.failTitles[t.Title] {
		return model.Task{}, errors.New("503 service unavailable")
	}
	return f.Memory.Create(ctx, t)
}

func openQueue(t *testing.T, titles ...string) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir(), rep.ID)
	require.NoError(t, err)
	for _, title := range titles {
		_, err := q.Append(model.Task{Title: title, Date: "2024-03-01", DepartmentType: "retail"})
		require.NoError(t, err)
	}
	return q
}

func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-sub.C():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestRunPushesQueueAndEmitsEvents(t *testing.T) {
	remote := store.NewMemory()
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	q := openQueue(t, "Visit client", "Send quote")
	res, err := New(remote, bus, zaptest.NewLogger(t)).Run(context.Background(), rep, q)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 2}, res)
	assert.Equal(t, 2, remote.Len())
	assert.Zero(t, q.Len())

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, events.TasksSynced, got[0].Kind)
	assert.Equal(t, events.SyncedPayload{SyncedCount: 2}, *got[0].Synced)
	assert.Equal(t, events.TasksRefreshNeeded, got[1].Kind)

	stored, err := remote.Fetch(context.Background(), model.Filter{Scope: model.ViewPersonal, MemberID: rep.ID})
	require.NoError(t, err)
	for _, task := range stored {
		assert.False(t, task.Pending)
	}
}

func TestRetriedSyncDoesNotDuplicate(t *testing.T) {
	// The previous pass created the record remotely but the queue still
	// holds it, as if the process died before the queue was rewritten.
	remote := store.NewMemory(model.Task{
		ID: "srv-9", Title: "visit  CLIENT", Date: "2024-03-01",
		OwnerID: rep.ID, DepartmentType: "retail",
	})
	q := openQueue(t, "Visit client")

	res, err := New(remote, nil, nil).Run(context.Background(), rep, q)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Skipped: 1}, res)
	assert.Equal(t, 1, remote.Len())
	assert.Zero(t, q.Len())
}

func TestPushConflictCountsAsPresent(t *testing.T) {
	q := openQueue(t, "Visit client")
	id := q.List()[0].ID
	// The id is taken by a record the actor cannot see, so the up-front
	// fetch misses it and the create reports the conflict.
	remote := store.NewMemory(model.Task{
		ID: id, Title: "Visit client", Date: "2024-03-01",
		OwnerID: "lead-1", AssignedTo: "rep-2", DepartmentType: "retail",
	})

	res, err := New(remote, nil, zaptest.NewLogger(t)).Run(context.Background(), rep, q)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Skipped: 1}, res)
	assert.Equal(t, 1, remote.Len())
	assert.Zero(t, q.Len())
}

func TestDuplicatesWithinQueueCreatedOnce(t *testing.T) {
	remote := store.NewMemory()
	q := openQueue(t, "Visit client", "visit client")

	res, err := New(remote, nil, nil).Run(context.Background(), rep, q)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, remote.Len())
}

func TestPartialFailureKeepsFailedItems(t *testing.T) {
	remote := &flakyStore{Memory: store.NewMemory(), failTitles: map[string]bool{"Send quote": true}}
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	q := openQueue(t, "Visit client", "Send quote")
	s := New(remote, bus, nil)

	res, err := s.Run(context.Background(), rep, q)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialSync)
	var partial *PartialSyncError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 1, partial.Synced)
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, Result{Synced: 1, Failed: 1}, res)

	left := q.List()
	require.Len(t, left, 1)
	assert.Equal(t, "Send quote", left[0].Title)

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, events.SyncedPayload{SyncedCount: 1, ErrorCount: 1}, *got[0].Synced)

	// Next login: the backend recovered.
	remote.failTitles = nil
	res, err = s.Run(context.Background(), rep, q)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1}, res)
	assert.Equal(t, 2, remote.Len())
}

func TestRemoteDownPushesNothing(t *testing.T) {
	remote := &flakyStore{Memory: store.NewMemory(), fetchErr: errors.New("timeout")}
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	q := openQueue(t, "Visit client")

	res, err := New(remote, bus, nil).Run(context.Background(), rep, q)
	assert.ErrorIs(t, err, ErrPartialSync)
	assert.ErrorIs(t, err, store.ErrBackendUnavailable)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Equal(t, 1, q.Len())
	assert.Zero(t, remote.Len())

	got := drain(sub)
	require.Len(t, got, 1, "no refresh when nothing synced")
	assert.Equal(t, events.SyncedPayload{ErrorCount: 1}, *got[0].Synced)
}

func TestOnLoginRunsOncePerSession(t *testing.T) {
	remote := &flakyStore{Memory: store.NewMemory(), failTitles: map[string]bool{"Visit client": true}}
	q := openQueue(t, "Visit client")
	s := New(remote, nil, nil)
	session := Session{ID: "login-1", Actor: rep}

	_, err := s.OnLogin(context.Background(), session, q)
	assert.ErrorIs(t, err, ErrPartialSync)

	remote.failTitles = nil
	res, err := s.OnLogin(context.Background(), session, q)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res, "no retry within the same session")
	assert.Equal(t, 1, q.Len())

	res, err = s.OnLogin(context.Background(), Session{ID: "login-2", Actor: rep}, q)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
}

func TestRunRejectsForeignQueue(t *testing.T) {
	q := openQueue(t)
	other := model.Actor{ID: "rep-2", Role: model.RoleEmployee}
	_, err := New(store.NewMemory(), nil, nil).Run(context.Background(), other, q)
	assert.ErrorIs(t, err, queue.ErrForeignTask)
}

type downStore struct{ store.TaskStore }

func (downStore) Create(context.Context, model.Task) (model.Task, error) {
	return model.Task{}, store.ErrBackendUnavailable
}

func TestSubmitCreatesRemotely(t *testing.T) {
	remote := store.NewMemory()
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TasksRefreshNeeded)
	q := openQueue(t)

	created, queued, err := New(remote, bus, zaptest.NewLogger(t)).Submit(context.Background(), q,
		model.Task{Title: "Visit client", OwnerID: rep.ID, DepartmentType: "retail"})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.False(t, created.Pending)
	assert.Equal(t, 1, remote.Len())
	assert.Zero(t, q.Len())

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, rep.ID, got[0].ActorID)
}

func TestSubmitQueuesWhenUnavailable(t *testing.T) {
	q := openQueue(t)
	pending, queued, err := New(downStore{}, nil, zaptest.NewLogger(t)).Submit(context.Background(), q,
		model.Task{Title: "Visit client", DepartmentType: "retail"})
	require.NoError(t, err)
	assert.True(t, queued)
	assert.True(t, pending.Pending)
	assert.Equal(t, rep.ID, pending.OwnerID)
	assert.Equal(t, 1, q.Len())
}

func TestSubmitDoesNotQueueInvalidTasks(t *testing.T) {
	q := openQueue(t)
	_, queued, err := New(store.NewMemory(), nil, nil).Submit(context.Background(), q,
		model.Task{Title: " ", OwnerID: rep.ID})
	assert.ErrorIs(t, err, model.ErrInvalidTask)
	assert.False(t, queued)
	assert.Zero(t, q.Len())
}
