// Package store defines the remote task store contract and the fallback
// chain that composes several stores into one.
package store

import (
	"context"
	"errors"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

var (
	// ErrBackendUnavailable means no candidate could serve the request.
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("task not found")

	// ErrConflict means a task with the same id already exists. The store
	// answered, so a chain does not try the next candidate.
	ErrConflict = errors.New("task already exists")
)

// TaskStore is the authoritative backend for tasks.
// Implementations: Memory, Chain, sqlstore.Store, google.CalendarClient.
type TaskStore interface {
	// Fetch returns the tasks selected by f, in the store's stable order.
	Fetch(ctx context.Context, f model.Filter) ([]model.Task, error)

	// Create stores t and returns it as persisted, with its remote id.
	Create(ctx context.Context, t model.Task) (model.Task, error)

	// Update applies a partial update to the task with the given id.
	Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)

	// Delete removes a task. It reports false when the id was unknown.
	Delete(ctx context.Context, id string) (bool, error)
}
