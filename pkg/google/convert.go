package google

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Private extended property keys. Each field rides in its own property so
// list calls can narrow on it and no value nears the 1024 byte limit.
const (
	PropTaskID     = "taskboard_id"
	PropOwner      = "taskboard_owner"
	PropAssignee   = "taskboard_assignee"
	PropTeam       = "taskboard_team"
	PropDepartment = "taskboard_department"
	PropScope      = "taskboard_scope"
	PropStatus     = "taskboard_status"
	PropPriority   = "taskboard_priority"
	PropCreatedAt  = "taskboard_created_at"
)

// Summary prefixes, in the order they are checked.
const (
	prefixCompleted  = "✓"
	prefixInProgress = "‣"
	prefixOverdue    = "!"
)

// ConvertTaskToEvent renders t as an all-day event on its Day. The summary
// carries a status prefix computed against now.
func ConvertTaskToEvent(t model.Task, colorID string, now time.Time) (*calendar.Event, error) {
	day := t.Day()
	if day == "" {
		return nil, fmt.Errorf("task %s has no date or creation time", t.ID)
	}
	start, err := time.Parse(model.DateLayout, day)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}

	summary := t.Title
	if prefix := summaryPrefix(t, day, now); prefix != "" {
		summary = prefix + " " + t.Title
	}

	return &calendar.Event{
		Summary:     summary,
		Description: t.Description,
		Location:    t.Location,
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{Date: day},
		End:         &calendar.EventDateTime{Date: start.AddDate(0, 0, 1).Format(model.DateLayout)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				PropTaskID:     t.ID,
				PropOwner:      t.OwnerID,
				PropAssignee:   t.AssignedTo,
				PropTeam:       t.TeamID,
				PropDepartment: t.DepartmentType,
				PropScope:      string(t.VisibilityScope),
				PropStatus:     string(t.Status),
				PropPriority:   string(t.Priority),
				PropCreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339),
			},
		},
	}, nil
}

func summaryPrefix(t model.Task, day string, now time.Time) string {
	switch {
	case t.Status == model.StatusCompleted:
		return prefixCompleted
	case t.Status == model.StatusInProgress:
		return prefixInProgress
	case day < now.UTC().Format(model.DateLayout):
		return prefixOverdue
	}
	return ""
}

// ConvertEventToTask reads a task back from an event. It reports false for
// events this application did not create.
func ConvertEventToTask(e *calendar.Event) (model.Task, bool) {
	if e == nil || e.ExtendedProperties == nil {
		return model.Task{}, false
	}
	props := e.ExtendedProperties.Private
	id := props[PropTaskID]
	if id == "" {
		return model.Task{}, false
	}

	t := model.Task{
		ID:              id,
		Title:           StripSummaryPrefix(e.Summary),
		Description:     e.Description,
		Location:        e.Location,
		Status:          model.Status(props[PropStatus]),
		Priority:        model.Priority(props[PropPriority]),
		OwnerID:         props[PropOwner],
		AssignedTo:      props[PropAssignee],
		TeamID:          props[PropTeam],
		DepartmentType:  props[PropDepartment],
		VisibilityScope: model.Scope(props[PropScope]),
	}
	// The event may have been dragged to another day in the calendar UI.
	if e.Start != nil {
		switch {
		case e.Start.Date != "":
			t.Date = e.Start.Date
		case e.Start.DateTime != "":
			if start, err := time.Parse(time.RFC3339, e.Start.DateTime); err == nil {
				t.Date = start.UTC().Format(model.DateLayout)
			}
		}
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, props[PropCreatedAt])
	t.UpdatedAt, _ = time.Parse(time.RFC3339, e.Updated)
	t.Normalize()
	return t, true
}

// StripSummaryPrefix removes a status prefix added by ConvertTaskToEvent.
func StripSummaryPrefix(summary string) string {
	for _, prefix := range []string{prefixCompleted, prefixInProgress, prefixOverdue} {
		if rest, ok := strings.CutPrefix(summary, prefix+" "); ok {
			return rest
		}
	}
	return summary
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when the event is already up to date.
func EventNeedsUpdate(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	// Cleared strings are omitted from the request body unless forced, and an
	// omitted field is left unchanged by Patch.
	if existing.Description != target.Description {
		patch.Description = target.Description
		patch.ForceSendFields = forceEmpty(patch.ForceSendFields, "Description", target.Description)
		needsUpdate = true
	}
	if existing.Location != target.Location {
		patch.Location = target.Location
		patch.ForceSendFields = forceEmpty(patch.ForceSendFields, "Location", target.Location)
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		patch.ForceSendFields = forceEmpty(patch.ForceSendFields, "ColorId", target.ColorId)
		needsUpdate = true
	}
	if eventDate(existing.Start) != eventDate(target.Start) || eventDate(existing.End) != eventDate(target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}
	if !maps.Equal(privateProps(existing), privateProps(target)) {
		patch.ExtendedProperties = target.ExtendedProperties
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func forceEmpty(fields []string, name, value string) []string {
	if value == "" {
		return append(fields, name)
	}
	return fields
}

func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.Date != "" {
		return dt.Date
	}
	return dt.DateTime
}

func privateProps(e *calendar.Event) map[string]string {
	if e.ExtendedProperties == nil {
		return nil
	}
	return e.ExtendedProperties.Private
}
