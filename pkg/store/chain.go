package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Candidate is one named backend in a fallback chain.
type Candidate struct {
	Name  string
	Store TaskStore
}

// Chain tries its candidates in order and stops at the first that succeeds.
//
// Until some candidate has returned a non-empty fetch, an empty result is
// treated like a miss and the next candidate is consulted. This covers a
// backend that comes up empty at startup (fresh cache, wrong calendar) while
// a later candidate holds the data. Once warm, empty results are accepted.
type Chain struct {
	candidates []Candidate
	logger     *zap.Logger
	warm       atomic.Bool
}

func NewChain(logger *zap.Logger, candidates ...Candidate) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{candidates: candidates, logger: logger}
}

// Names returns the candidate names in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.candidates))
	for i, cand := range c.candidates {
		names[i] = cand.Name
	}
	return names
}

func (c *Chain) Fetch(ctx context.Context, f model.Filter) ([]model.Task, error) {
	var errs []error
	var emptyFrom string
	for _, cand := range c.candidates {
		tasks, err := cand.Store.Fetch(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("task store fetch failed", zap.String("candidate", cand.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cand.Name, err))
			continue
		}
		if len(tasks) == 0 && !c.warm.Load() {
			c.logger.Debug("empty result before warm-up, trying next candidate", zap.String("candidate", cand.Name))
			if emptyFrom == "" {
				emptyFrom = cand.Name
			}
			continue
		}
		if len(tasks) > 0 {
			c.warm.Store(true)
		}
		return tasks, nil
	}
	if emptyFrom != "" {
		// Every reachable candidate agreed there is nothing to show.
		return nil, nil
	}
	return nil, unavailable(errs)
}

func (c *Chain) Create(ctx context.Context, t model.Task) (model.Task, error) {
	var errs []error
	for _, cand := range c.candidates {
		created, err := cand.Store.Create(ctx, t)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, model.ErrInvalidTask) || errors.Is(err, ErrConflict) || ctx.Err() != nil {
			return model.Task{}, err
		}
		c.logger.Warn("task store create failed", zap.String("candidate", cand.Name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", cand.Name, err))
	}
	return model.Task{}, unavailable(errs)
}

func (c *Chain) Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	var errs []error
	for _, cand := range c.candidates {
		updated, err := cand.Store.Update(ctx, id, patch)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, model.ErrInvalidTask) || ctx.Err() != nil {
			return model.Task{}, err
		}
		c.logger.Warn("task store update failed", zap.String("candidate", cand.Name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", cand.Name, err))
	}
	if allNotFound(errs) {
		return model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return model.Task{}, unavailable(errs)
}

func (c *Chain) Delete(ctx context.Context, id string) (bool, error) {
	var errs []error
	for _, cand := range c.candidates {
		deleted, err := cand.Store.Delete(ctx, id)
		if err == nil && deleted {
			return true, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			c.logger.Warn("task store delete failed", zap.String("candidate", cand.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cand.Name, err))
		}
	}
	if len(errs) == len(c.candidates) && len(errs) > 0 {
		return false, unavailable(errs)
	}
	return false, nil
}

func unavailable(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: no candidates configured", ErrBackendUnavailable)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, errors.Join(errs...))
}

func allNotFound(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !errors.Is(err, ErrNotFound) {
			return false
		}
	}
	return true
}
