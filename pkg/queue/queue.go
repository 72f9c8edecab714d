// Package queue is the per-actor durable list of tasks created locally and
// not yet confirmed by the remote store.
//
// Each actor has one YAML file under <dir>/pending/<actor>.yaml:
//
//	version: 1
//	actor_id: u-42
//	updated_at: 2024-03-01T09:00:00Z
//	tasks:
//	  - id: 6f1c...
//	    title: Visit client
//	    date: "2024-03-01"
//	    pending: true
//
// Writes go to a temp file that is renamed over the original, so a crash
// never leaves a truncated queue behind.
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

const fileVersion = 1

var ErrForeignTask = errors.New("task belongs to another actor")

type document struct {
	Version   int          `yaml:"version"`
	ActorID   string       `yaml:"actor_id"`
	UpdatedAt time.Time    `yaml:"updated_at"`
	Tasks     []model.Task `yaml:"tasks"`
}

// Queue holds one actor's pending tasks in insertion order.
type Queue struct {
	Path    string
	actorID string

	mu    sync.Mutex
	tasks []model.Task
	now   func() time.Time
}

// Path returns the queue file for an actor below dir.
func Path(dir, actorID string) string {
	return filepath.Join(dir, "pending", actorID+".yaml")
}

// Open loads the actor's queue, or starts an empty one if none exists yet.
func Open(dir, actorID string) (*Queue, error) {
	if actorID == "" || strings.ContainsAny(actorID, `/\`) || actorID == "." || actorID == ".." {
		return nil, fmt.Errorf("invalid actor id %q", actorID)
	}
	q := &Queue{
		Path:    Path(dir, actorID),
		actorID: actorID,
		now:     time.Now,
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ActorID() string {
	return q.actorID
}

func (q *Queue) load() error {
	data, err := os.ReadFile(q.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read pending queue: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse pending queue %s: %w", q.Path, err)
	}
	if doc.ActorID != "" && doc.ActorID != q.actorID {
		return fmt.Errorf("pending queue %s belongs to %q: %w", q.Path, doc.ActorID, ErrForeignTask)
	}
	for i := range doc.Tasks {
		doc.Tasks[i].Pending = true
	}
	q.tasks = doc.Tasks
	return nil
}

// save must be called with q.mu held.
func (q *Queue) save() error {
	if err := os.MkdirAll(filepath.Dir(q.Path), 0700); err != nil {
		return fmt.Errorf("failed to create pending queue directory: %w", err)
	}
	data, err := yaml.Marshal(document{
		Version:   fileVersion,
		ActorID:   q.actorID,
		UpdatedAt: q.now().UTC(),
		Tasks:     q.tasks,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pending queue: %w", err)
	}

	tmpPath := q.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write pending queue: %w", err)
	}
	if err := os.Rename(tmpPath, q.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename pending queue: %w", err)
	}
	return nil
}

// Append records a new pending task. The task gets a client-generated id and
// the actor as owner when those are unset.
func (q *Queue) Append(t model.Task) (model.Task, error) {
	if t.OwnerID == "" {
		t.OwnerID = q.actorID
	}
	if t.OwnerID != q.actorID {
		return model.Task{}, fmt.Errorf("%w: owner %q", ErrForeignTask, t.OwnerID)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = q.now().UTC()
	}
	t.Pending = true

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	if err := q.save(); err != nil {
		q.tasks = q.tasks[:len(q.tasks)-1]
		return model.Task{}, err
	}
	return t, nil
}

// List returns a copy of the pending tasks in insertion order.
func (q *Queue) List() []model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Task(nil), q.tasks...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Remove drops the tasks with the given ids and returns how many were removed.
// The file is only rewritten when something changed.
func (q *Queue) Remove(ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]model.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		if _, ok := drop[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	removed := len(q.tasks) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	previous := q.tasks
	q.tasks = kept
	if err := q.save(); err != nil {
		q.tasks = previous
		return 0, err
	}
	return removed, nil
}
