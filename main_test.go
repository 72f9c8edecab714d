package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskboard/pkg/api"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

const testConfig = `
log_level: error
data_dir: %DATA%
backends: [%BACKENDS%]
http:
  jwt_secret: cli-secret
roster:
  teams:
    - {id: north, name: North, leader_id: tl-n, department_type: retail}
  members:
    - {id: tl-n, role: team_leader, team_id: north, department_type: retail}
    - {id: rep-a, role: employee, team_id: north, department_type: retail}
    - {id: rep-b, role: employee, team_id: north, department_type: retail}
`

// writeConfig points HOME at a temp dir so no real credentials are found and
// returns the path of a config using the given backends.
func writeConfig(t *testing.T, home, backends string) string {
	t.Helper()
	t.Setenv("HOME", home)
	body := strings.NewReplacer("%DATA%", filepath.Join(home, "data"), "%BACKENDS%", backends).Replace(testConfig)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// execute runs the root command with fresh flag state and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	actorID, viewName, memberID, teamID, jsonOutput = "", string(model.ViewPersonal), "", "", false
	newTask = model.Task{VisibilityScope: model.ScopePersonal, Priority: model.PriorityNormal}
	assignee, serveAddr, configPath, verbose = "", "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddAndList(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")

	out, err := execute(t, "add", "-c", cfgFile, "--actor", "rep-a", "--title", "Visit Acme", "--date", "2026-03-05")
	require.NoError(t, err)
	assert.Contains(t, out, `Created "Visit Acme"`)

	out, err = execute(t, "list", "-c", cfgFile, "--actor", "rep-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Visit Acme")
	assert.Contains(t, out, "2026-03-05")
	assert.Contains(t, out, "counts: personal=1 shared=0")
	assert.NotContains(t, out, "offline")
}

func TestLeaderAssignsAndListsIndividualView(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")

	_, err := execute(t, "add", "-c", cfgFile, "--actor", "tl-n", "--title", "Call Beta", "--assign", "rep-b", "--scope", "team")
	require.NoError(t, err)

	out, err := execute(t, "list", "-c", cfgFile, "--actor", "tl-n", "--view", "individual", "--member", "rep-b", "--json")
	require.NoError(t, err)
	var snap snapshotJSON
	require.NoError(t, json.Unmarshal([]byte(out), &snap), out)
	assert.Equal(t, model.ViewIndividual, snap.View)
	assert.Equal(t, "rep-b", snap.Target)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "rep-b", snap.Tasks[0].AssignedTo)
	assert.Equal(t, 1, snap.Counts[model.ViewTeam])
	assert.Equal(t, 1, snap.Members["rep-b"])
}

func TestAddRejectsMemberOutsideReach(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")
	_, err := execute(t, "add", "-c", cfgFile, "--actor", "rep-a", "--title", "For Beta", "--assign", "rep-b")
	assert.ErrorContains(t, err, "cannot assign")
}

func TestListViewNotPermitted(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")
	_, err := execute(t, "list", "-c", cfgFile, "--actor", "rep-a", "--view", "department")
	assert.ErrorIs(t, err, visibility.ErrViewNotPermitted)
}

func TestUnknownActor(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")
	_, err := execute(t, "list", "-c", cfgFile, "--actor", "nobody")
	assert.ErrorContains(t, err, "not in the roster")
}

func TestOfflineAddThenSync(t *testing.T) {
	home := t.TempDir()
	// Google without a cached token drops out of the chain, leaving nothing.
	cfgFile := writeConfig(t, home, "google")

	out, err := execute(t, "add", "-c", cfgFile, "--actor", "rep-a", "--title", "Offline visit", "--date", "2026-03-06")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued")

	out, err = execute(t, "list", "-c", cfgFile, "--actor", "rep-a")
	require.NoError(t, err)
	assert.Contains(t, out, "(offline)")
	assert.Contains(t, out, "Offline visit [pending]")
	assert.Contains(t, out, "counts: personal=1(local) shared=?")

	cfgFile = writeConfig(t, home, "sqlite, google")
	out, err = execute(t, "sync", "-c", cfgFile, "--actor", "rep-a")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 1 (0 already present), failed 0, 0 still pending")

	out, err = execute(t, "list", "-c", cfgFile, "--actor", "rep-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Offline visit")
	assert.NotContains(t, out, "[pending]")
}

func TestTokenCommand(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "sqlite")
	out, err := execute(t, "token", "-c", cfgFile, "--actor", "tl-n")
	require.NoError(t, err)

	claims := &api.Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "tl-n", Role: model.RoleTeamLeader, TeamID: "north", DepartmentType: "retail"}, actor)
	assert.NotEmpty(t, claims.ID)
}

func TestOpenBackendSkipsUnauthorizedGoogle(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir(), "memory, google")
	_, err := execute(t, "token", "-c", cfgFile, "--actor", "rep-a")
	require.NoError(t, err)

	b, err := openBackend(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, []string{"memory"}, b.chain.Names())
}
