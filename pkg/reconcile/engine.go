package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/queue"
	"github.com/harrisonrobin/taskboard/pkg/store"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

// Result is the reconciled list for one (actor, view) pair.
type Result struct {
	View      model.ViewLevel
	Filter    model.Filter
	Tasks     []model.Task
	Offline   bool // remote unavailable, Tasks holds local pending items only
	Confirmed int  // pending items confirmed and dropped from the queue
}

// Engine reconciles one session's views. The queue, when set, must belong to
// the session actor; it is never consulted for anyone else.
type Engine struct {
	store  store.TaskStore
	queue  *queue.Queue
	logger *zap.Logger
}

func NewEngine(ts store.TaskStore, q *queue.Queue, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: ts, queue: q, logger: logger}
}

// Reconcile resolves the view, fetches it from the store and merges the
// session's pending items into it.
func (e *Engine) Reconcile(ctx context.Context, actor model.Actor, roster model.Roster, view model.ViewLevel, target string) (Result, error) {
	sel, err := visibility.Resolve(actor, view, target, roster)
	if err != nil {
		return Result{}, err
	}
	res := Result{View: view, Filter: sel.Filter}
	local := e.pending(actor, sel)

	fetched, err := e.store.Fetch(ctx, sel.Filter)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !errors.Is(err, store.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %w", store.ErrBackendUnavailable, err)
		}
		if !view.LocalOnly() {
			return Result{}, err
		}
		e.logger.Warn("remote store unavailable, serving pending tasks only",
			zap.String("actor", actor.ID), zap.String("view", string(view)), zap.Error(err))
		res.Tasks, _ = Merge(nil, local)
		res.Offline = true
		return res, nil
	}

	remote := make([]model.Task, 0, len(fetched))
	for _, t := range fetched {
		if sel.Match(t) {
			remote = append(remote, t)
			continue
		}
		e.logger.Debug("dropping task outside the selection", zap.String("task", t.ID), zap.String("view", string(view)))
	}

	var confirmed []string
	res.Tasks, confirmed = Merge(remote, local)
	if len(confirmed) > 0 && e.queue != nil {
		n, err := e.queue.Remove(confirmed...)
		if err != nil {
			// The merged list is still correct; the next merge confirms again.
			e.logger.Error("failed to drop confirmed pending tasks", zap.Error(err))
		}
		res.Confirmed = n
		e.logger.Debug("pending tasks confirmed", zap.String("actor", actor.ID), zap.Int("count", n))
	}
	return res, nil
}

func (e *Engine) pending(actor model.Actor, sel visibility.Selection) []model.Task {
	if e.queue == nil || !sel.View.LocalOnly() || e.queue.ActorID() != actor.ID {
		return nil
	}
	var out []model.Task
	for _, t := range e.queue.List() {
		if sel.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
