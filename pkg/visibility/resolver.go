// Package visibility decides which slice of the shared task collection an
// actor may observe under each view level.
//
// Resolve is a pure function of the actor, the requested view, an optional
// target and the roster. It returns ErrViewNotPermitted rather than an empty
// selection when the actor lacks standing, so callers can hide the view
// instead of rendering it empty.
package visibility

import (
	"errors"
	"fmt"
	"slices"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

var ErrViewNotPermitted = errors.New("view not permitted")

// Selection is the outcome of resolving a view: the descriptor sent to the
// task store and the predicate applied to anything already fetched.
type Selection struct {
	View   model.ViewLevel
	Filter model.Filter
}

// Match applies the selection locally. Remote results pass through it too, so
// a store that ignores part of the filter cannot widen what the actor sees.
func (s Selection) Match(t model.Task) bool {
	return s.Filter.Match(t)
}

// Resolve maps (actor, view, target) to a selection. For the team view the
// target names a team; for the individual view it names a member. An empty
// target means the actor's own team, or for individual, every visible member.
func Resolve(actor model.Actor, view model.ViewLevel, target string, roster model.Roster) (Selection, error) {
	if actor.ID == "" {
		return Selection{}, fmt.Errorf("%w: anonymous actor", ErrViewNotPermitted)
	}
	if !rolePermits(actor.Role, view) {
		return Selection{}, fmt.Errorf("%w: %s cannot use the %s view", ErrViewNotPermitted, actor.Role, view)
	}

	sel := Selection{View: view, Filter: model.Filter{Scope: view}}
	switch view {
	case model.ViewPersonal:
		sel.Filter.MemberID = actor.ID
	case model.ViewShared:
		sel.Filter.DepartmentType = actor.DepartmentType
	case model.ViewTeam:
		teamID, err := resolveTeam(actor, target, roster)
		if err != nil {
			return Selection{}, err
		}
		sel.Filter.TeamID = teamID
		sel.Filter.DepartmentType = actor.DepartmentType
	case model.ViewIndividual:
		sel.Filter.DepartmentType = actor.DepartmentType
		if target == "" {
			sel.Filter.MemberIDs = memberIDs(VisibleMembers(actor, roster))
			break
		}
		if !CanTarget(actor, target, roster) {
			return Selection{}, fmt.Errorf("%w: member %q is outside the visible roster", ErrViewNotPermitted, target)
		}
		sel.Filter.MemberID = target
	case model.ViewDepartment:
		sel.Filter.DepartmentType = actor.DepartmentType
	}
	return sel, nil
}

// Permitted lists the views the actor may use, in selector order.
func Permitted(actor model.Actor) []model.ViewLevel {
	var views []model.ViewLevel
	for _, v := range model.ViewLevels {
		if rolePermits(actor.Role, v) {
			views = append(views, v)
		}
	}
	return views
}

func rolePermits(role model.Role, view model.ViewLevel) bool {
	switch role {
	case model.RoleEmployee, model.RoleTeamLeader, model.RoleDirector:
	default:
		return false
	}
	switch view {
	case model.ViewPersonal, model.ViewShared:
		return true
	case model.ViewTeam, model.ViewIndividual:
		return role == model.RoleTeamLeader || role == model.RoleDirector
	case model.ViewDepartment:
		return role == model.RoleDirector
	}
	return false
}

func resolveTeam(actor model.Actor, target string, roster model.Roster) (string, error) {
	if target == "" || target == actor.TeamID {
		if actor.TeamID == "" {
			return "", fmt.Errorf("%w: actor has no team", ErrViewNotPermitted)
		}
		return actor.TeamID, nil
	}
	if actor.Role != model.RoleDirector {
		return "", fmt.Errorf("%w: only directors may open another team", ErrViewNotPermitted)
	}
	team, ok := roster.Team(target)
	if !ok || team.DepartmentType != actor.DepartmentType {
		return "", fmt.Errorf("%w: team %q is outside the department", ErrViewNotPermitted, target)
	}
	return team.ID, nil
}

// VisibleMembers returns the roster a manager may inspect individually: the
// own team for a team leader, the own department for a director. The actor
// is excluded; their own work is the personal view.
func VisibleMembers(actor model.Actor, roster model.Roster) []model.Member {
	var out []model.Member
	for _, m := range roster.Members {
		if m.ID == actor.ID {
			continue
		}
		switch actor.Role {
		case model.RoleTeamLeader:
			if actor.TeamID != "" && m.TeamID == actor.TeamID && m.DepartmentType == actor.DepartmentType {
				out = append(out, m)
			}
		case model.RoleDirector:
			if m.DepartmentType == actor.DepartmentType {
				out = append(out, m)
			}
		}
	}
	return out
}

// CanTarget reports whether the actor may open memberID in the individual view.
func CanTarget(actor model.Actor, memberID string, roster model.Roster) bool {
	return slices.ContainsFunc(VisibleMembers(actor, roster), func(m model.Member) bool {
		return m.ID == memberID
	})
}

func memberIDs(members []model.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
