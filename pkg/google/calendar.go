// Package google stores tasks as all-day events on a Google Calendar.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/taskboard/pkg/colors"
	"github.com/harrisonrobin/taskboard/pkg/index"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/store"
)

// CalendarClient is a store.TaskStore backed by one Google Calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	colors     *colors.ColorCache
	logger     *zap.Logger
	now        func() time.Time
}

var _ store.TaskStore = (*CalendarClient)(nil)

// NewCalendarClient wraps an authenticated service. The index and colour
// cache are optional.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.EventIndex, cc *colors.ColorCache, logger *zap.Logger) *CalendarClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarClient{
		srv:        srv,
		calendarID: calendarID,
		index:      idx,
		colors:     cc,
		logger:     logger.With(zap.String("calendar", calendarID)),
		now:        time.Now,
	}
}

func (c *CalendarClient) colorFor(t model.Task) string {
	if c.colors == nil {
		return ""
	}
	return c.colors.ColorID(t.AssignedTo)
}

// Fetch lists the calendar's task events, narrowed server side on team and
// department where the filter pins them, and applies the filter locally.
func (c *CalendarClient) Fetch(ctx context.Context, f model.Filter) ([]model.Task, error) {
	props := []string{}
	if f.DepartmentType != "" {
		props = append(props, PropDepartment+"="+f.DepartmentType)
	}
	if f.Scope == model.ViewTeam && f.TeamID != "" {
		props = append(props, PropTeam+"="+f.TeamID)
	}
	call := c.srv.Events.List(c.calendarID).SingleEvents(true).ShowDeleted(false)
	if len(props) > 0 {
		call = call.PrivateExtendedProperty(props...)
	}

	var out []model.Task
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, e := range page.Items {
			t, ok := ConvertEventToTask(e)
			if !ok {
				continue
			}
			if c.index != nil {
				c.index.Set(t.ID, e.Id)
			}
			if f.Match(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

// Create inserts the task's event. A task whose id already has an event is
// patched instead, so a retried create never duplicates.
func (c *CalendarClient) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := c.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Pending = false

	event, err := ConvertTaskToEvent(t, c.colorFor(t), now)
	if err != nil {
		return model.Task{}, err
	}

	existing, err := c.lookup(ctx, t.ID)
	if err != nil {
		return model.Task{}, err
	}
	if existing != nil {
		c.logger.Debug("event already exists for task, patching", zap.String("task", t.ID), zap.String("event", existing.Id))
		if _, err := c.patch(ctx, t.ID, existing, event); err != nil {
			return model.Task{}, err
		}
		return t, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert event: %w", err)
	}
	if c.index != nil {
		c.index.Set(t.ID, created.Id)
	}
	return t, nil
}

func (c *CalendarClient) Update(ctx context.Context, id string, p model.TaskPatch) (model.Task, error) {
	existing, err := c.lookup(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if existing == nil {
		return model.Task{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	current, ok := ConvertEventToTask(existing)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	t := p.Apply(current)
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	now := c.now().UTC()
	t.UpdatedAt = now

	target, err := ConvertTaskToEvent(t, c.colorFor(t), now)
	if err != nil {
		return model.Task{}, err
	}
	if _, err := c.patch(ctx, id, existing, target); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

func (c *CalendarClient) patch(ctx context.Context, taskID string, existing, target *calendar.Event) (*calendar.Event, error) {
	diff := EventNeedsUpdate(existing, target)
	if diff == nil {
		return existing, nil
	}
	updated, err := c.srv.Events.Patch(c.calendarID, existing.Id, diff).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to patch event %s: %w", existing.Id, err)
	}
	if c.index != nil {
		c.index.Set(taskID, updated.Id)
	}
	return updated, nil
}

func (c *CalendarClient) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := c.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := c.srv.Events.Delete(c.calendarID, existing.Id).Context(ctx).Do(); err != nil && !isGone(err) {
		return false, fmt.Errorf("failed to delete event %s: %w", existing.Id, err)
	}
	if c.index != nil {
		c.index.Remove(id)
	}
	return true, nil
}

// lookup finds the event for a task id, trying the local index before
// searching the calendar. It returns nil, nil when no event exists.
func (c *CalendarClient) lookup(ctx context.Context, taskID string) (*calendar.Event, error) {
	if c.index != nil {
		if eventID := c.index.Get(taskID); eventID != "" {
			e, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			switch {
			case err == nil && e.Status != "cancelled":
				return e, nil
			case err != nil && !isGone(err):
				c.logger.Debug("indexed event lookup failed, searching", zap.String("event", eventID), zap.Error(err))
			}
			c.index.Remove(taskID)
		}
	}

	e, err := c.GetEventByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("error searching for event: %w", err)
	}
	if e == nil {
		return nil, nil
	}
	if c.index != nil {
		c.index.Set(taskID, e.Id)
	}
	return e, nil
}

// GetEventByTaskID searches for the event carrying the given task id.
func (c *CalendarClient) GetEventByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(PropTaskID + "=" + taskID).
		ShowDeleted(false).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

// Close persists the index and colour cache.
func (c *CalendarClient) Close() error {
	var errs []error
	if c.index != nil {
		errs = append(errs, c.index.Save())
	}
	if c.colors != nil {
		errs = append(errs, c.colors.Save())
	}
	return errors.Join(errs...)
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
