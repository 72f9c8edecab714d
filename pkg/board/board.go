// Package board owns one session's dashboard state: the actor, the roster, the
// active view, the reconciled task list and the aggregate counts.
//
// Only the board writes that state. Every change of view, target or roster
// bumps a generation counter; a refresh that finishes under an older
// generation is discarded instead of applied, so a slow request for a
// previous view can never overwrite the current one. Consumers read copies
// through Snapshot.
package board

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/taskboard/pkg/aggregate"
	"github.com/harrisonrobin/taskboard/pkg/events"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/reconcile"
	"github.com/harrisonrobin/taskboard/pkg/store"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

// ErrStale is returned by Refresh when the view changed while it ran.
var ErrStale = errors.New("refresh superseded by a newer view")

// Snapshot is a read-only copy of the board state.
type Snapshot struct {
	Actor      model.Actor
	View       model.ViewLevel
	Target     string
	Generation uint64
	Tasks      []model.Task
	Offline    bool
	Counts     aggregate.Counts
	// Unavailable lists views whose counts could not be computed because
	// the remote store was down.
	Unavailable []model.ViewLevel
	// OfflineViews lists views served from the pending queue alone. Their
	// counts cover the local items only.
	OfflineViews []model.ViewLevel
	// Err is the active view's error, if any: ErrViewNotPermitted means the
	// view should be hidden, ErrBackendUnavailable that it is offline.
	Err       error
	UpdatedAt time.Time
}

func (s Snapshot) clone() Snapshot {
	s.Tasks = append([]model.Task(nil), s.Tasks...)
	s.Unavailable = append([]model.ViewLevel(nil), s.Unavailable...)
	s.OfflineViews = append([]model.ViewLevel(nil), s.OfflineViews...)
	s.Counts.Views = maps.Clone(s.Counts.Views)
	s.Counts.Members = maps.Clone(s.Counts.Members)
	return s
}

// Board coordinates reconciliation and counting for one actor.
type Board struct {
	engine *reconcile.Engine
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	actor  model.Actor
	roster model.Roster
	view   model.ViewLevel
	target string
	gen    uint64
	snap   Snapshot
}

func New(engine *reconcile.Engine, actor model.Actor, roster model.Roster, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Board{
		engine: engine,
		logger: logger.With(zap.String("actor", actor.ID)),
		now:    time.Now,
		actor:  actor,
		roster: roster.Clone(),
		view:   model.ViewPersonal,
		gen:    1,
	}
	b.snap = Snapshot{Actor: actor, View: b.view, Generation: b.gen}
	return b
}

// SetView switches the active view and target and returns the new
// generation. Any refresh still in flight for the old view is discarded.
func (b *Board) SetView(view model.ViewLevel, target string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.view = view
	b.target = target
	b.gen++
	return b.gen
}

// SetTarget changes only the target of the active view.
func (b *Board) SetTarget(target string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	b.gen++
	return b.gen
}

// SetRoster replaces the roster. Counts depend on it, so it also
// invalidates in-flight refreshes.
func (b *Board) SetRoster(roster model.Roster) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roster = roster.Clone()
	b.gen++
	return b.gen
}

func (b *Board) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.clone()
}

// Refresh reconciles the active view and recounts every view from scratch.
// The returned error is the active view's error; ErrStale means the result
// was discarded.
func (b *Board) Refresh(ctx context.Context) (Snapshot, error) {
	b.mu.Lock()
	actor, roster, view, target, gen := b.actor, b.roster, b.view, b.target, b.gen
	b.mu.Unlock()

	next, err := b.compute(ctx, actor, roster, view, target)
	if err != nil {
		return Snapshot{}, err
	}
	next.Generation = gen
	next.UpdatedAt = b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		b.logger.Debug("discarding stale refresh",
			zap.Uint64("generation", gen), zap.Uint64("current", b.gen), zap.String("view", string(view)))
		return Snapshot{}, ErrStale
	}
	b.snap = next
	return next.clone(), next.Err
}

type censusEntry struct {
	view model.ViewLevel
	res  reconcile.Result
	err  error
}

// compute runs without the lock held. It only fails on context errors;
// per-view failures are recorded in the snapshot.
func (b *Board) compute(ctx context.Context, actor model.Actor, roster model.Roster, view model.ViewLevel, target string) (Snapshot, error) {
	permitted := visibility.Permitted(actor)
	entries := make([]censusEntry, len(permitted))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range permitted {
		g.Go(func() error {
			res, err := b.engine.Reconcile(gctx, actor, roster, v, "")
			entries[i] = censusEntry{view: v, res: res, err: err}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Actor: actor, View: view, Target: target}
	var union []model.Task
	var active *censusEntry
	for i, e := range entries {
		if e.view == view && target == "" {
			active = &entries[i]
		}
		switch {
		case e.err == nil:
			union = append(union, e.res.Tasks...)
			if e.res.Offline {
				snap.OfflineViews = append(snap.OfflineViews, e.view)
			}
		case errors.Is(e.err, store.ErrBackendUnavailable):
			snap.Unavailable = append(snap.Unavailable, e.view)
		case errors.Is(e.err, visibility.ErrViewNotPermitted):
			// e.g. a director without a team has no default team view.
		default:
			b.logger.Warn("census reconcile failed", zap.String("view", string(e.view)), zap.Error(e.err))
			snap.Unavailable = append(snap.Unavailable, e.view)
		}
	}
	snap.Counts = aggregate.Compute(actor, roster, union)
	for _, v := range snap.Unavailable {
		delete(snap.Counts.Views, v)
	}

	if active == nil {
		res, err := b.engine.Reconcile(ctx, actor, roster, view, target)
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		active = &censusEntry{view: view, res: res, err: err}
	}
	if active.err != nil {
		snap.Err = active.err
		return snap, nil
	}
	snap.Tasks = active.res.Tasks
	snap.Offline = active.res.Offline
	return snap, nil
}

// Watch refreshes the board whenever sub delivers tasks-refresh-needed. It
// returns when ctx is done or the subscription closes.
func (b *Board) Watch(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if e.Kind != events.TasksRefreshNeeded {
				continue
			}
			if _, err := b.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) && ctx.Err() == nil {
				b.logger.Debug("refresh after event", zap.Error(err))
			}
		}
	}
}
