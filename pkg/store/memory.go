package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Memory is an in-process TaskStore. Fetch returns tasks in insertion order.
type Memory struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]model.Task
	now   func() time.Time
}

func NewMemory(seed ...model.Task) *Memory {
	m := &Memory{tasks: make(map[string]model.Task), now: time.Now}
	for _, t := range seed {
		t.Normalize()
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Pending = false
		m.order = append(m.order, t.ID)
		m.tasks[t.ID] = t
	}
	return m
}

func (m *Memory) Fetch(ctx context.Context, f model.Filter) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Task
	for _, id := range m.order {
		if t := m.tasks[id]; f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, t model.Task) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A client-generated id is kept so a retried create is recognisable.
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := m.tasks[t.ID]; exists {
		return model.Task{}, fmt.Errorf("%w: %s", ErrConflict, t.ID)
	}
	now := m.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Pending = false
	m.order = append(m.order, t.ID)
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t = patch.Apply(t)
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	t.UpdatedAt = m.now()
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return false, nil
	}
	delete(m.tasks, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Len returns the number of stored tasks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
