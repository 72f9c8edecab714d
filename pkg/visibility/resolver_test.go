package visibility

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

var testRoster = model.Roster{
	Teams: []model.Team{
		{ID: "north", LeaderID: "tl-n", DepartmentType: "retail"},
		{ID: "south", LeaderID: "tl-s", DepartmentType: "retail"},
		{ID: "bulk", LeaderID: "tl-w", DepartmentType: "wholesale"},
	},
	Members: []model.Member{
		{ID: "dir", Role: model.RoleDirector, DepartmentType: "retail"},
		{ID: "tl-n", Role: model.RoleTeamLeader, TeamID: "north", DepartmentType: "retail"},
		{ID: "rep-n", Role: model.RoleEmployee, TeamID: "north", DepartmentType: "retail"},
		{ID: "tl-s", Role: model.RoleTeamLeader, TeamID: "south", DepartmentType: "retail"},
		{ID: "rep-s", Role: model.RoleEmployee, TeamID: "south", DepartmentType: "retail"},
		{ID: "rep-w", Role: model.RoleEmployee, TeamID: "bulk", DepartmentType: "wholesale"},
	},
}

func actor(id string) model.Actor {
	m, ok := testRoster.Member(id)
	if !ok {
		panic("unknown member " + id)
	}
	return m.Actor()
}

func TestPermissionMatrix(t *testing.T) {
	permitted := map[model.Role][]model.ViewLevel{
		model.RoleEmployee:   {model.ViewPersonal, model.ViewShared},
		model.RoleTeamLeader: {model.ViewPersonal, model.ViewShared, model.ViewTeam, model.ViewIndividual},
		model.RoleDirector:   {model.ViewPersonal, model.ViewShared, model.ViewTeam, model.ViewIndividual, model.ViewDepartment},
	}
	actors := map[model.Role]model.Actor{
		model.RoleEmployee:   actor("rep-n"),
		model.RoleTeamLeader: actor("tl-n"),
		// Directors normally have no team; give this one a team so the team
		// view resolves without a target.
		model.RoleDirector: {ID: "dir", Role: model.RoleDirector, TeamID: "north", DepartmentType: "retail"},
	}

	for role, a := range actors {
		assert.Equal(t, permitted[role], Permitted(a), role)
		for _, view := range model.ViewLevels {
			_, err := Resolve(a, view, "", testRoster)
			allowed := false
			for _, v := range permitted[role] {
				allowed = allowed || v == view
			}
			if allowed {
				assert.NoError(t, err, "%s/%s", role, view)
			} else {
				assert.ErrorIs(t, err, ErrViewNotPermitted, "%s/%s", role, view)
			}
		}
	}
}

func TestUnknownRoleAndViewRejected(t *testing.T) {
	_, err := Resolve(model.Actor{ID: "x", Role: "admin"}, model.ViewPersonal, "", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted)

	_, err = Resolve(actor("dir"), "everything", "", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted)

	_, err = Resolve(model.Actor{Role: model.RoleDirector}, model.ViewPersonal, "", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted)
}

func TestLeaderRequestingDepartmentFailsClosed(t *testing.T) {
	sel, err := Resolve(actor("tl-n"), model.ViewDepartment, "", testRoster)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrViewNotPermitted))
	assert.Equal(t, Selection{}, sel)
}

func TestTeamTargets(t *testing.T) {
	sel, err := Resolve(actor("tl-n"), model.ViewTeam, "", testRoster)
	require.NoError(t, err)
	assert.Equal(t, "north", sel.Filter.TeamID)

	_, err = Resolve(actor("tl-n"), model.ViewTeam, "south", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted, "team leader cannot open another team")

	sel, err = Resolve(actor("dir"), model.ViewTeam, "south", testRoster)
	require.NoError(t, err)
	assert.Equal(t, "south", sel.Filter.TeamID)

	_, err = Resolve(actor("dir"), model.ViewTeam, "bulk", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted, "director limited to own department")

	_, err = Resolve(actor("dir"), model.ViewTeam, "", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted, "director without a team must name one")
}

func TestIndividualTargets(t *testing.T) {
	sel, err := Resolve(actor("tl-n"), model.ViewIndividual, "rep-n", testRoster)
	require.NoError(t, err)
	assert.Equal(t, "rep-n", sel.Filter.MemberID)

	_, err = Resolve(actor("tl-n"), model.ViewIndividual, "rep-s", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted)

	_, err = Resolve(actor("dir"), model.ViewIndividual, "rep-s", testRoster)
	assert.NoError(t, err)

	_, err = Resolve(actor("dir"), model.ViewIndividual, "rep-w", testRoster)
	assert.ErrorIs(t, err, ErrViewNotPermitted)
}

func TestIndividualWithoutTargetIsRosterUnion(t *testing.T) {
	sel, err := Resolve(actor("dir"), model.ViewIndividual, "", testRoster)
	require.NoError(t, err)
	assert.Empty(t, sel.Filter.MemberID)
	assert.Equal(t, []string{"tl-n", "rep-n", "tl-s", "rep-s"}, sel.Filter.MemberIDs)

	sel, err = Resolve(actor("tl-s"), model.ViewIndividual, "", testRoster)
	require.NoError(t, err)
	assert.Equal(t, []string{"rep-s"}, sel.Filter.MemberIDs)

	// Not an unfiltered department view: a department task assigned to
	// nobody on the roster stays out.
	orphan := model.Task{OwnerID: "gone", AssignedTo: "gone", DepartmentType: "retail"}
	assert.False(t, sel.Match(orphan))
}

func TestSharedRequiresSameDepartment(t *testing.T) {
	sel, err := Resolve(actor("rep-n"), model.ViewShared, "", testRoster)
	require.NoError(t, err)

	shared := model.Task{OwnerID: "rep-w", AssignedTo: "rep-w", DepartmentType: "wholesale", VisibilityScope: model.ScopeShared}
	assert.False(t, sel.Match(shared), "shared flag alone must not cross departments")
	shared.DepartmentType = "retail"
	assert.True(t, sel.Match(shared))
}

func TestPersonalMatchesOwnerOrAssignee(t *testing.T) {
	sel, err := Resolve(actor("rep-n"), model.ViewPersonal, "", testRoster)
	require.NoError(t, err)

	assert.True(t, sel.Match(model.Task{OwnerID: "rep-n", AssignedTo: "tl-n", VisibilityScope: model.ScopePersonal}))
	assert.True(t, sel.Match(model.Task{OwnerID: "tl-n", AssignedTo: "rep-n", VisibilityScope: model.ScopePersonal}))
	assert.False(t, sel.Match(model.Task{OwnerID: "tl-n", AssignedTo: "tl-n", VisibilityScope: model.ScopePersonal}))
	assert.False(t, sel.Match(model.Task{OwnerID: "rep-n", AssignedTo: "rep-n", VisibilityScope: model.ScopeTeam}))
}
