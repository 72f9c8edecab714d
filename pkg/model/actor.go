package model

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleTeamLeader Role = "team_leader"
	RoleDirector   Role = "director"
)

// Actor is the authenticated user of the current session.
type Actor struct {
	ID             string `json:"id" yaml:"id"`
	Role           Role   `json:"role" yaml:"role"`
	TeamID         string `json:"teamId" yaml:"team_id"`
	DepartmentType string `json:"departmentType" yaml:"department_type"`
}

func (a Actor) IsManager() bool {
	return a.Role == RoleTeamLeader || a.Role == RoleDirector
}

type Team struct {
	ID             string `json:"id" yaml:"id" mapstructure:"id"`
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	LeaderID       string `json:"leaderId" yaml:"leader_id" mapstructure:"leader_id"`
	DepartmentType string `json:"departmentType" yaml:"department_type" mapstructure:"department_type"`
}

type Member struct {
	ID             string `json:"id" yaml:"id" mapstructure:"id"`
	Name           string `json:"name" yaml:"name" mapstructure:"name"`
	Role           Role   `json:"role" yaml:"role" mapstructure:"role"`
	TeamID         string `json:"teamId" yaml:"team_id" mapstructure:"team_id"`
	DepartmentType string `json:"departmentType" yaml:"department_type" mapstructure:"department_type"`
}

// Actor returns the member as a session actor.
func (m Member) Actor() Actor {
	return Actor{ID: m.ID, Role: m.Role, TeamID: m.TeamID, DepartmentType: m.DepartmentType}
}

// Roster is the set of teams and members known to a session. Order is
// preserved so that derived lists are stable.
type Roster struct {
	Teams   []Team   `json:"teams" yaml:"teams" mapstructure:"teams"`
	Members []Member `json:"members" yaml:"members" mapstructure:"members"`
}

func (r Roster) Team(id string) (Team, bool) {
	for _, t := range r.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}

func (r Roster) Member(id string) (Member, bool) {
	for _, m := range r.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// Clone returns a deep copy so callers can hand out snapshots.
func (r Roster) Clone() Roster {
	return Roster{
		Teams:   append([]Team(nil), r.Teams...),
		Members: append([]Member(nil), r.Members...),
	}
}
