package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

type downStore struct{ calls int }

var errDown = errors.New("connection refused")

func (d *downStore) Fetch(context.Context, model.Filter) ([]model.Task, error) {
	d.calls++
	return nil, errDown
}

func (d *downStore) Create(context.Context, model.Task) (model.Task, error) {
	d.calls++
	return model.Task{}, errDown
}

func (d *downStore) Update(context.Context, string, model.TaskPatch) (model.Task, error) {
	d.calls++
	return model.Task{}, errDown
}

func (d *downStore) Delete(context.Context, string) (bool, error) {
	d.calls++
	return false, errDown
}

func personal(id string) model.Filter {
	return model.Filter{Scope: model.ViewPersonal, MemberID: id}
}

func task(owner, title string) model.Task {
	return model.Task{OwnerID: owner, Title: title, DepartmentType: "retail"}
}

func TestChainFallsThroughOnError(t *testing.T) {
	down := &downStore{}
	up := NewMemory(task("u1", "Call supplier"))
	chain := NewChain(zaptest.NewLogger(t), Candidate{"primary", down}, Candidate{"cache", up})

	tasks, err := chain.Fetch(context.Background(), personal("u1"))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call supplier", tasks[0].Title)
	assert.Equal(t, 1, down.calls)
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	first := NewMemory(task("u1", "From first"))
	second := &downStore{}
	chain := NewChain(nil, Candidate{"first", first}, Candidate{"second", second})

	tasks, err := chain.Fetch(context.Background(), personal("u1"))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Zero(t, second.calls)

	_, err = chain.Create(context.Background(), task("u1", "Another"))
	require.NoError(t, err)
	assert.Zero(t, second.calls)
	assert.Equal(t, 2, first.Len())
}

func TestChainSkipsEmptyCandidateUntilWarm(t *testing.T) {
	empty := NewMemory()
	full := NewMemory(task("u1", "Quarterly review"))
	chain := NewChain(nil, Candidate{"empty", empty}, Candidate{"full", full})

	tasks, err := chain.Fetch(context.Background(), personal("u1"))
	require.NoError(t, err)
	require.Len(t, tasks, 1, "cold chain should move past an empty candidate")

	// Warm now: an empty answer from the first candidate is authoritative.
	tasks, err = chain.Fetch(context.Background(), personal("nobody"))
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = empty.Create(context.Background(), task("u2", "Only in empty"))
	require.NoError(t, err)
	tasks, err = chain.Fetch(context.Background(), personal("u1"))
	require.NoError(t, err)
	assert.Empty(t, tasks, "warm chain must accept the first candidate's empty result")
}

func TestChainAllEmptyIsNotAnError(t *testing.T) {
	chain := NewChain(nil, Candidate{"a", NewMemory()}, Candidate{"b", NewMemory()})
	tasks, err := chain.Fetch(context.Background(), personal("u1"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestChainAllDown(t *testing.T) {
	chain := NewChain(nil, Candidate{"a", &downStore{}}, Candidate{"b", &downStore{}})

	_, err := chain.Fetch(context.Background(), personal("u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, errDown)

	_, err = chain.Create(context.Background(), task("u1", "x"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = chain.Delete(context.Background(), "id")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestChainWithoutCandidates(t *testing.T) {
	_, err := NewChain(nil).Fetch(context.Background(), personal("u1"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestChainDoesNotRetryInvalidTask(t *testing.T) {
	second := NewMemory()
	chain := NewChain(nil, Candidate{"first", NewMemory()}, Candidate{"second", second})

	_, err := chain.Create(context.Background(), model.Task{OwnerID: "u1"})
	assert.ErrorIs(t, err, model.ErrInvalidTask)
	assert.Zero(t, second.Len())
}

func TestChainCreateConflictStops(t *testing.T) {
	first := NewMemory(model.Task{ID: "t-1", OwnerID: "u1", Title: "Call supplier", DepartmentType: "retail"})
	second := NewMemory()
	chain := NewChain(zaptest.NewLogger(t), Candidate{"primary", first}, Candidate{"cache", second})

	_, err := chain.Create(context.Background(), model.Task{ID: "t-1", OwnerID: "u2", Title: "Other", DepartmentType: "retail"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.Zero(t, second.Len())
}

func TestChainUpdateNotFound(t *testing.T) {
	chain := NewChain(nil, Candidate{"a", NewMemory()}, Candidate{"b", NewMemory()})
	title := "renamed"
	_, err := chain.Update(context.Background(), "missing", model.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestMemoryUpdateReassignsInPlace(t *testing.T) {
	m := NewMemory()
	created, err := m.Create(context.Background(), task("owner", "Visit client"))
	require.NoError(t, err)
	assert.Equal(t, "owner", created.AssignedTo)

	assignee := "rep"
	updated, err := m.Update(context.Background(), created.ID, model.TaskPatch{AssignedTo: &assignee})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "owner", updated.OwnerID)
	assert.Equal(t, "rep", updated.AssignedTo)

	deleted, err := m.Delete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = m.Delete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
