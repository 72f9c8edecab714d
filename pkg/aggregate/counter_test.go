package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

var (
	director = model.Actor{ID: "dir", Role: model.RoleDirector, DepartmentType: "retail"}
	leaderA  = model.Actor{ID: "tl-a", Role: model.RoleTeamLeader, TeamID: "team-a", DepartmentType: "retail"}
	leaderB  = model.Actor{ID: "tl-b", Role: model.RoleTeamLeader, TeamID: "team-b", DepartmentType: "retail"}
	repA     = model.Member{ID: "rep-a", Role: model.RoleEmployee, TeamID: "team-a", DepartmentType: "retail"}

	roster = model.Roster{
		Teams: []model.Team{
			{ID: "team-a", LeaderID: "tl-a", DepartmentType: "retail"},
			{ID: "team-b", LeaderID: "tl-b", DepartmentType: "retail"},
		},
		Members: []model.Member{
			{ID: "dir", Role: model.RoleDirector, DepartmentType: "retail"},
			{ID: "tl-a", Role: model.RoleTeamLeader, TeamID: "team-a", DepartmentType: "retail"},
			{ID: "tl-b", Role: model.RoleTeamLeader, TeamID: "team-b", DepartmentType: "retail"},
			repA,
		},
	}
)

// leaderTasks gives a team leader three team tasks and two personal ones.
func leaderTasks(leader model.Actor) []model.Task {
	var tasks []model.Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, model.Task{
			ID: fmt.Sprintf("%s-team-%d", leader.ID, i), Title: "team work",
			OwnerID: leader.ID, AssignedTo: leader.ID, TeamID: leader.TeamID,
			DepartmentType: leader.DepartmentType, VisibilityScope: model.ScopeTeam,
		})
	}
	for i := 0; i < 2; i++ {
		tasks = append(tasks, model.Task{
			ID: fmt.Sprintf("%s-personal-%d", leader.ID, i), Title: "own work",
			OwnerID: leader.ID, AssignedTo: leader.ID, TeamID: leader.TeamID,
			DepartmentType: leader.DepartmentType, VisibilityScope: model.ScopePersonal,
		})
	}
	return tasks
}

func departmentTasks() []model.Task {
	return append(leaderTasks(leaderA), leaderTasks(leaderB)...)
}

func TestDirectorAndLeaderScenario(t *testing.T) {
	tasks := departmentTasks()

	dir := Compute(director, roster, tasks)
	assert.Equal(t, 10, dir.Views[model.ViewDepartment])

	for _, leader := range []model.Actor{leaderA, leaderB} {
		c := Compute(leader, roster, tasks)
		assert.Equal(t, 3, c.Views[model.ViewTeam], leader.ID)
		assert.Equal(t, 2, c.Views[model.ViewPersonal], leader.ID)
		_, hasDepartment := c.Views[model.ViewDepartment]
		assert.False(t, hasDepartment, "team leader must not get a department count")
	}
}

func TestMemberCountsSumToIndividualView(t *testing.T) {
	tasks := append(departmentTasks(),
		model.Task{ID: "r1", Title: "call", OwnerID: "tl-a", AssignedTo: "rep-a", TeamID: "team-a", DepartmentType: "retail", VisibilityScope: model.ScopeTeam},
		model.Task{ID: "r2", Title: "visit", OwnerID: "rep-a", TeamID: "team-a", DepartmentType: "retail"},
		// Outside the department: never counted.
		model.Task{ID: "w1", Title: "other", OwnerID: "zz", AssignedTo: "rep-a", DepartmentType: "wholesale"},
	)
	for i := range tasks {
		tasks[i].Normalize()
	}

	for _, actor := range []model.Actor{director, leaderA, leaderB} {
		c := Compute(actor, roster, tasks)
		assert.Equal(t, c.Views[model.ViewIndividual], c.MemberTotal(), actor.ID)
	}

	dir := Compute(director, roster, tasks)
	assert.Equal(t, map[string]int{"tl-a": 5, "tl-b": 5, "rep-a": 2}, dir.Members)

	lead := Compute(leaderA, roster, tasks)
	assert.Equal(t, map[string]int{"rep-a": 2}, lead.Members)

	// Team B has no members besides its leader; the roster is empty, not missing.
	leadB := Compute(leaderB, roster, tasks)
	assert.Empty(t, leadB.Members)
	assert.Zero(t, leadB.Views[model.ViewIndividual])
}

func TestEmployeeSeesOnlyPersonalAndShared(t *testing.T) {
	emp := repA.Actor()
	c := Compute(emp, roster, departmentTasks())
	require.Len(t, c.Views, 2)
	assert.Contains(t, c.Views, model.ViewPersonal)
	assert.Contains(t, c.Views, model.ViewShared)
	assert.Nil(t, c.Members)
}

func TestDuplicateIDsCountedOnce(t *testing.T) {
	tasks := leaderTasks(leaderA)
	doubled := append(append([]model.Task(nil), tasks...), tasks...)
	assert.Equal(t, Compute(leaderA, roster, tasks), Compute(leaderA, roster, doubled))
}

func TestCountsMatchResolverForEveryView(t *testing.T) {
	tasks := departmentTasks()
	c := Compute(director, roster, tasks)
	for view, n := range c.Views {
		sel, err := visibility.Resolve(director, view, "", roster)
		require.NoError(t, err)
		want := 0
		for _, task := range tasks {
			if sel.Match(task) {
				want++
			}
		}
		assert.Equal(t, want, n, view)
	}
}
