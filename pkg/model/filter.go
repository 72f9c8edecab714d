package model

import (
	"fmt"
	"slices"
)

// ViewLevel is a lens controlling which tasks an actor may see.
type ViewLevel string

const (
	ViewPersonal   ViewLevel = "personal"
	ViewShared     ViewLevel = "shared"
	ViewTeam       ViewLevel = "team"
	ViewIndividual ViewLevel = "individual"
	ViewDepartment ViewLevel = "department"
)

// ViewLevels lists every view level in the order the view selector shows them.
var ViewLevels = []ViewLevel{ViewPersonal, ViewShared, ViewTeam, ViewIndividual, ViewDepartment}

func ParseViewLevel(s string) (ViewLevel, error) {
	v := ViewLevel(s)
	if slices.Contains(ViewLevels, v) {
		return v, nil
	}
	return "", fmt.Errorf("unknown view level %q", s)
}

// LocalOnly reports whether the view may be served from the session's own
// pending queue. Only the owner's device holds pending items.
func (v ViewLevel) LocalOnly() bool {
	return v == ViewPersonal || v == ViewIndividual
}

// Filter is the descriptor a task store evaluates. Its fields are set by the
// visibility resolver; stores must not widen it.
type Filter struct {
	Scope          ViewLevel `json:"scope"`
	TeamID         string    `json:"teamId,omitempty"`
	DepartmentType string    `json:"departmentType,omitempty"`
	MemberID       string    `json:"memberId,omitempty"`
	MemberIDs      []string  `json:"memberIds,omitempty"`
}

// Match reports whether t is selected by the filter.
func (f Filter) Match(t Task) bool {
	switch f.Scope {
	case ViewPersonal:
		return f.MemberID != "" &&
			(t.AssignedTo == f.MemberID || t.OwnerID == f.MemberID) &&
			t.VisibilityScope == ScopePersonal
	case ViewShared:
		return f.DepartmentType != "" &&
			t.VisibilityScope == ScopeShared &&
			t.DepartmentType == f.DepartmentType
	case ViewTeam:
		return f.TeamID != "" &&
			t.VisibilityScope == ScopeTeam &&
			t.TeamID == f.TeamID &&
			(f.DepartmentType == "" || t.DepartmentType == f.DepartmentType)
	case ViewIndividual:
		if f.DepartmentType != "" && t.DepartmentType != f.DepartmentType {
			return false
		}
		if f.MemberID != "" {
			return t.AssignedTo == f.MemberID
		}
		return slices.Contains(f.MemberIDs, t.AssignedTo)
	case ViewDepartment:
		return f.DepartmentType != "" && t.DepartmentType == f.DepartmentType
	}
	return false
}

// Members returns the assignees an individual filter selects.
func (f Filter) Members() []string {
	if f.MemberID != "" {
		return []string{f.MemberID}
	}
	return f.MemberIDs
}
