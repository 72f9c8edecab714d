// Package syncer pushes an actor's pending queue to the remote store once per
// login.
//
// There is no background retry loop. Items that fail stay queued and are
// pushed again on the next login; equivalent remote records are detected first
// so a retried pass never creates duplicates.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/events"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/queue"
	"github.com/harrisonrobin/taskboard/pkg/reconcile"
	"github.com/harrisonrobin/taskboard/pkg/store"
)

var ErrPartialSync = errors.New("partial sync failure")

// PartialSyncError reports a pass in which some items could not be pushed.
// It is not fatal: the failed items remain pending.
type PartialSyncError struct {
	Synced int
	Failed int
	Err    error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("synced %d pending tasks, %d failed: %v", e.Synced, e.Failed, e.Err)
}

func (e *PartialSyncError) Is(target error) bool {
	return target == ErrPartialSync
}

func (e *PartialSyncError) Unwrap() error {
	return e.Err
}

// Result summarises one pass.
type Result struct {
	Synced  int // created remotely, or already present
	Skipped int // subset of Synced that already existed remotely
	Failed  int
}

// Session identifies one login of an actor.
type Session struct {
	ID    string
	Actor model.Actor
}

type Scheduler struct {
	store  store.TaskStore
	bus    *events.Bus
	logger *zap.Logger

	mu  sync.Mutex
	ran map[string]bool
}

func New(ts store.TaskStore, bus *events.Bus, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{store: ts, bus: bus, logger: logger, ran: make(map[string]bool)}
}

// OnLogin runs the sync pass for a session. A second call for the same
// session id returns a zero Result without touching the store.
func (s *Scheduler) OnLogin(ctx context.Context, session Session, q *queue.Queue) (Result, error) {
	s.mu.Lock()
	if s.ran[session.ID] {
		s.mu.Unlock()
		return Result{}, nil
	}
	s.ran[session.ID] = true
	s.mu.Unlock()

	return s.Run(ctx, session.Actor, q)
}

// Run performs one pass over q, which must be the actor's own queue.
func (s *Scheduler) Run(ctx context.Context, actor model.Actor, q *queue.Queue) (Result, error) {
	if q.ActorID() != actor.ID {
		return Result{}, fmt.Errorf("%w: queue of %q opened for %q", queue.ErrForeignTask, q.ActorID(), actor.ID)
	}
	pending := q.List()
	if len(pending) == 0 {
		return Result{}, nil
	}
	logger := s.logger.With(zap.String("actor", actor.ID))

	// One fetch up front: the remote keys tell us which items already exist.
	existing, err := s.remoteKeys(ctx, actor)
	if err != nil {
		res := Result{Failed: len(pending)}
		s.publish(actor.ID, res)
		logger.Warn("auto-sync skipped, remote store unreachable", zap.Int("pending", len(pending)), zap.Error(err))
		return res, &PartialSyncError{Failed: res.Failed, Err: err}
	}

	var (
		res     Result
		done    []string
		lastErr error
	)
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			res.Failed += len(pending) - res.Synced - res.Failed
			lastErr = err
			break
		}
		key := reconcile.OwnerKey(t)
		if existing.has(t.ID, key) {
			logger.Debug("duplicate skipped", zap.String("task", t.ID), zap.String("title", t.Title))
			res.Synced++
			res.Skipped++
			done = append(done, t.ID)
			continue
		}

		t.Pending = false
		created, err := s.store.Create(ctx, t)
		if errors.Is(err, store.ErrConflict) {
			// An earlier pass pushed it but never dropped it from the queue.
			logger.Debug("pending task already stored", zap.String("task", t.ID))
			existing.add(t.ID, key)
			res.Synced++
			res.Skipped++
			done = append(done, t.ID)
			continue
		}
		if err != nil {
			logger.Warn("failed to push pending task", zap.String("task", t.ID), zap.Error(err))
			res.Failed++
			lastErr = err
			continue
		}
		existing.add(created.ID, key)
		res.Synced++
		done = append(done, t.ID)
	}

	if _, err := q.Remove(done...); err != nil {
		// The items are remote now; the next merge will confirm and drop them.
		logger.Error("failed to drop synced tasks from queue", zap.Error(err))
	}
	s.publish(actor.ID, res)
	logger.Info("auto-sync finished",
		zap.Int("synced", res.Synced), zap.Int("skipped", res.Skipped), zap.Int("failed", res.Failed))

	if res.Failed > 0 {
		return res, &PartialSyncError{Synced: res.Synced, Failed: res.Failed, Err: lastErr}
	}
	return res, nil
}

// Submit creates t in the remote store. When no backend is reachable the
// task is appended to q instead and queued is true.
func (s *Scheduler) Submit(ctx context.Context, q *queue.Queue, t model.Task) (task model.Task, queued bool, err error) {
	created, err := s.store.Create(ctx, t)
	if err == nil {
		if s.bus != nil {
			s.bus.Publish(events.Event{Kind: events.TasksRefreshNeeded, ActorID: created.OwnerID})
		}
		return created, false, nil
	}
	if !errors.Is(err, store.ErrBackendUnavailable) || ctx.Err() != nil {
		return model.Task{}, false, err
	}
	pending, qerr := q.Append(t)
	if qerr != nil {
		return model.Task{}, false, fmt.Errorf("remote store unavailable and queueing failed: %w", qerr)
	}
	s.logger.Info("remote store unavailable, task queued",
		zap.String("actor", q.ActorID()), zap.String("task", pending.ID), zap.Error(err))
	return pending, true, nil
}

func (s *Scheduler) publish(actorID string, res Result) {
	if s.bus != nil {
		s.bus.PublishSynced(actorID, res.Synced, res.Failed)
	}
}

type keySet struct {
	ids  map[string]bool
	keys map[string]bool
}

func (k keySet) has(id, key string) bool {
	return (id != "" && k.ids[id]) || k.keys[key]
}

func (k keySet) add(id, key string) {
	if id != "" {
		k.ids[id] = true
	}
	k.keys[key] = true
}

// remoteKeys collects what the actor already has remotely. Pending items are
// always owned by the actor, so the personal view covers them.
func (s *Scheduler) remoteKeys(ctx context.Context, actor model.Actor) (keySet, error) {
	set := keySet{ids: make(map[string]bool), keys: make(map[string]bool)}
	filters := []model.Filter{{Scope: model.ViewPersonal, MemberID: actor.ID}}
	// Pending items published to the team or department are not in the
	// personal view; widen with the actor's department when it is known.
	if actor.DepartmentType != "" {
		filters = append(filters,
			model.Filter{Scope: model.ViewShared, DepartmentType: actor.DepartmentType})
		if actor.TeamID != "" {
			filters = append(filters,
				model.Filter{Scope: model.ViewTeam, TeamID: actor.TeamID, DepartmentType: actor.DepartmentType})
		}
	}
	for _, f := range filters {
		tasks, err := s.store.Fetch(ctx, f)
		if err != nil {
			if !errors.Is(err, store.ErrBackendUnavailable) {
				err = fmt.Errorf("%w: %w", store.ErrBackendUnavailable, err)
			}
			return keySet{}, err
		}
		for _, t := range tasks {
			if t.OwnerID == actor.ID {
				set.add(t.ID, reconcile.OwnerKey(t))
			}
		}
	}
	return set, nil
}
