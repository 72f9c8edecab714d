package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Scope is the audience a task was published to by its owner.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeTeam     Scope = "team"
	ScopeShared   Scope = "shared"
)

// DateLayout is the layout of Task.Date.
const DateLayout = "2006-01-02"

var ErrInvalidTask = errors.New("invalid task")

// Task is a unit of work shown on the dashboard and the calendar.
type Task struct {
	ID              string    `json:"id" yaml:"id"`
	Title           string    `json:"title" yaml:"title"`
	Description     string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status          Status    `json:"status" yaml:"status"`
	Priority        Priority  `json:"priority" yaml:"priority"`
	OwnerID         string    `json:"ownerId" yaml:"owner_id"`
	AssignedTo      string    `json:"assignedTo" yaml:"assigned_to"`
	TeamID          string    `json:"teamId,omitempty" yaml:"team_id,omitempty"`
	DepartmentType  string    `json:"departmentType" yaml:"department_type"`
	Location        string    `json:"location,omitempty" yaml:"location,omitempty"`
	VisibilityScope Scope     `json:"visibilityScope" yaml:"visibility_scope"`
	Date            string    `json:"date,omitempty" yaml:"date,omitempty"` // YYYY-MM-DD
	CreatedAt       time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" yaml:"updated_at"`
	Pending         bool      `json:"pending" yaml:"pending"`
}

// Normalize fills in defaults: the assignee falls back to the owner and
// empty enums take their least privileged value.
func (t *Task) Normalize() {
	t.Title = strings.TrimSpace(t.Title)
	if t.AssignedTo == "" {
		t.AssignedTo = t.OwnerID
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if t.VisibilityScope == "" {
		t.VisibilityScope = ScopePersonal
	}
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidTask)
	}
	switch t.Status {
	case StatusTodo, StatusInProgress, StatusOnHold, StatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	switch t.VisibilityScope {
	case ScopePersonal, ScopeTeam, ScopeShared:
	default:
		return fmt.Errorf("%w: unknown visibility scope %q", ErrInvalidTask, t.VisibilityScope)
	}
	if t.Date != "" {
		if _, err := time.Parse(DateLayout, t.Date); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidTask, t.Date)
		}
	}
	return nil
}

// Day returns the calendar day the task belongs to. Tasks without an explicit
// date fall on the UTC day they were created.
func (t Task) Day() string {
	if t.Date != "" {
		return t.Date
	}
	if t.CreatedAt.IsZero() {
		return ""
	}
	return t.CreatedAt.UTC().Format(DateLayout)
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title           *string   `json:"title,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Status          *Status   `json:"status,omitempty"`
	Priority        *Priority `json:"priority,omitempty"`
	AssignedTo      *string   `json:"assignedTo,omitempty"`
	Location        *string   `json:"location,omitempty"`
	VisibilityScope *Scope    `json:"visibilityScope,omitempty"`
	Date            *string   `json:"date,omitempty"`
}

// Apply returns a copy of t with the patch applied. Ownership never changes.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.VisibilityScope != nil {
		t.VisibilityScope = *p.VisibilityScope
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	t.Normalize()
	return t
}
