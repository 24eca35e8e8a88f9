package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crewdesk/internal/backendtest"
	"crewdesk/internal/model"
)

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()
	return runCLIWithInput(t, "", args)
}

func runCLIWithInput(t *testing.T, input string, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

type cliEnv struct {
	t   *testing.T
	srv *backendtest.Server
	dir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("CREWDESK_API_URL", "")
	t.Setenv("CREWDESK_SESSION_BACKEND", "")
	t.Setenv("CREWDESK_FORMAT", "")
	return &cliEnv{t: t, srv: backendtest.New(t), dir: t.TempDir()}
}

func (e *cliEnv) args(args ...string) []string {
	return append([]string{"--config-dir", e.dir, "--api-url", e.srv.APIURL()}, args...)
}

func (e *cliEnv) run(args ...string) ([]byte, []byte, error) {
	e.t.Helper()
	return runCLI(e.t, e.args(args...))
}

func (e *cliEnv) mustRun(args ...string) map[string]any {
	e.t.Helper()
	stdout, stderr, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("command failed: crewdesk %v\nerr: %v\nstderr:\n%s\nstdout:\n%s", args, err, stderr, stdout)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		e.t.Fatalf("unmarshal stdout as json envelope: %v\nstdout:\n%s\nargs: %v", err, stdout, args)
	}
	if _, ok := env["data"]; !ok {
		e.t.Fatalf("expected JSON envelope to contain data key; got: %v", env)
	}
	return env
}

func (e *cliEnv) mustFail(args ...string) string {
	e.t.Helper()
	stdout, stderr, err := e.run(args...)
	if err == nil {
		e.t.Fatalf("expected crewdesk %v to fail\nstdout:\n%s", args, stdout)
	}
	return string(stderr)
}

func (e *cliEnv) login(email, password string) {
	e.t.Helper()
	e.mustRun("login", "--email", email, "--password", password)
}

func dataMap(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	m, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", env["data"])
	}
	return m
}

func (e *cliEnv) putRequests() []string {
	var out []string
	for _, r := range e.srv.Requests() {
		if strings.HasPrefix(r, "PUT ") {
			out = append(out, r)
		}
	}
	return out
}

func TestLoginThenWhoami_FounderView(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")

	login := dataMap(t, e.mustRun("login", "--email", "fay@x.io", "--password", "pw"))
	if login["view"] != "founder" {
		t.Fatalf("expected founder view, got %v", login["view"])
	}

	who := dataMap(t, e.mustRun("whoami"))
	user, _ := who["user"].(map[string]any)
	if user["email"] != "fay@x.io" || user["role"] != "founder" {
		t.Fatalf("unexpected user: %v", user)
	}
	tabs, _ := who["tabs"].([]any)
	if len(tabs) != 4 {
		t.Fatalf("expected 4 founder tabs, got %v", tabs)
	}
	if who["tokenExpired"] != false {
		t.Fatalf("expected a live token, got %v", who["tokenExpired"])
	}
	caps, _ := who["capabilities"].([]any)
	found := false
	for _, c := range caps {
		if c == "team.provision" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected team.provision capability, got %v", caps)
	}
}

func TestLogin_PromptsForPasswordFromStdin(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedMember("Max Member", "max@x.io", "hunter2")

	stdout, stderr, err := runCLIWithInput(t, "hunter2\n", e.args("login", "--email", "max@x.io"))
	if err != nil {
		t.Fatalf("login failed: %v\nstderr:\n%s", err, stderr)
	}
	if !strings.Contains(string(stdout), `"team_member"`) {
		t.Fatalf("expected team_member view, got:\n%s", stdout)
	}
}

func TestLogin_WrongPasswordLeavesNoSession(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")

	stderr := e.mustFail("login", "--email", "fay@x.io", "--password", "nope")
	if !strings.Contains(stderr, "Incorrect email or password") {
		t.Fatalf("expected backend message, got:\n%s", stderr)
	}
	if got := e.mustFail("whoami"); !strings.Contains(got, "not logged in") {
		t.Fatalf("expected not logged in, got:\n%s", got)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	e := newCLIEnv(t)
	if got := e.mustFail("tasks", "list"); !strings.Contains(got, "not logged in") {
		t.Fatalf("expected not logged in, got:\n%s", got)
	}
	if len(e.srv.Requests()) != 0 {
		t.Fatalf("expected no backend traffic, got %v", e.srv.Requests())
	}
}

func TestTasks_MemberCannotCompletePendingTask(t *testing.T) {
	e := newCLIEnv(t)
	m := e.srv.SeedMember("Max Member", "max@x.io", "pw")
	task := e.srv.SeedTask(model.Task{Title: "Ship it", AssignedTo: &m.ID})
	e.login("max@x.io", "pw")

	stderr := e.mustFail("tasks", "complete", task.ID)
	if !strings.Contains(stderr, "start the task before completing it") {
		t.Fatalf("unexpected error:\n%s", stderr)
	}
	if puts := e.putRequests(); len(puts) != 0 {
		t.Fatalf("rejected move must not be dispatched, got %v", puts)
	}
	if got, _ := e.srv.Task(task.ID); got.Status != model.StatusPending {
		t.Fatalf("server task changed: %v", got.Status)
	}
}

func TestTasks_MemberStartThenComplete(t *testing.T) {
	e := newCLIEnv(t)
	m := e.srv.SeedMember("Max Member", "max@x.io", "pw")
	task := e.srv.SeedTask(model.Task{Title: "Ship it", AssignedTo: &m.ID})
	e.login("max@x.io", "pw")

	started := dataMap(t, e.mustRun("tasks", "start", task.ID))
	if started["status"] != "in_progress" {
		t.Fatalf("expected in_progress, got %v", started["status"])
	}
	done := dataMap(t, e.mustRun("tasks", "complete", task.ID))
	if done["status"] != "completed" {
		t.Fatalf("expected completed, got %v", done["status"])
	}
	if next, _ := done["next"].([]any); len(next) != 0 {
		t.Fatalf("completed task must offer no moves, got %v", next)
	}

	stderr := e.mustFail("tasks", "start", task.ID)
	if !strings.Contains(stderr, "cannot modify a completed task") {
		t.Fatalf("unexpected error:\n%s", stderr)
	}
}

func TestTasks_BackendForbiddenMapsToCompleted(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	task := e.srv.SeedTask(model.Task{Title: "Ship it"})
	e.login("fay@x.io", "pw")

	e.srv.Force("PUT", "/tasks/"+task.ID, 403, "Cannot update completed tasks")
	e.srv.ResetRequests()

	stderr := e.mustFail("tasks", "status", task.ID, "in_progress")
	if !strings.Contains(stderr, "cannot modify a completed task") {
		t.Fatalf("unexpected error:\n%s", stderr)
	}
	// The board is refetched after the failed update.
	reqs := e.srv.Requests()
	if len(reqs) == 0 || reqs[len(reqs)-1] != "GET /api/v1/tasks" {
		t.Fatalf("expected a refetch after the failed update, got %v", reqs)
	}
}

func TestTasks_RevokedCredentialEndsSession(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.login("fay@x.io", "pw")

	e.srv.RevokeAll()
	e.mustFail("tasks", "list")

	if got := e.mustFail("whoami"); !strings.Contains(got, "not logged in") {
		t.Fatalf("expected the saved session to be cleared, got:\n%s", got)
	}
}

func TestTasks_ListTableFormat(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.srv.SeedTask(model.Task{Title: "Write launch post"})
	e.login("fay@x.io", "pw")

	stdout, stderr, err := e.run("--format", "table", "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list failed: %v\n%s", err, stderr)
	}
	out := string(stdout)
	for _, want := range []string{"TITLE", "STATUS", "Write launch post", "Pending"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table output:\n%s", want, out)
		}
	}
}

func TestTasks_ListJSONCarriesStats(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.srv.SeedTask(model.Task{Title: "A"})
	e.srv.SeedTask(model.Task{Title: "B", Status: model.StatusCompleted})
	e.login("fay@x.io", "pw")

	env := e.mustRun("tasks", "list", "--status", "pending")
	list, _ := env["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one pending task, got %v", env["data"])
	}
	meta, _ := env["meta"].(map[string]any)
	stats, _ := meta["stats"].(map[string]any)
	if stats["total"] != float64(2) || stats["completed"] != float64(1) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestTasks_MemberListHasNoStats(t *testing.T) {
	e := newCLIEnv(t)
	m := e.srv.SeedMember("Max Member", "max@x.io", "pw")
	e.srv.SeedTask(model.Task{Title: "A", AssignedTo: &m.ID})
	e.login("max@x.io", "pw")

	env := e.mustRun("tasks", "list")
	if list, _ := env["data"].([]any); len(list) != 1 {
		t.Fatalf("expected the assigned task, got %v", env["data"])
	}
	if _, ok := env["meta"]; ok {
		t.Fatalf("team members get no stats: %v", env["meta"])
	}
}

func TestPasswordReset_MismatchNotDispatched(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")

	stderr := e.mustFail("password", "reset", "--email", "fay@x.io",
		"--current-password", "pw", "--new-password", "one", "--confirm-password", "two")
	if !strings.Contains(stderr, "New passwords do not match") {
		t.Fatalf("unexpected error:\n%s", stderr)
	}
	if len(e.srv.Requests()) != 0 {
		t.Fatalf("expected no requests, got %v", e.srv.Requests())
	}
}

func TestPasswordReset_ThenLoginWithNewPassword(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")

	e.mustRun("password", "reset", "--email", "fay@x.io",
		"--current-password", "pw", "--new-password", "n3w", "--confirm-password", "n3w")
	e.mustFail("login", "--email", "fay@x.io", "--password", "pw")
	e.login("fay@x.io", "n3w")
}

func TestContacts_MemberAddsNote(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	e.srv.SeedMember("Max Member", "max@x.io", "pw")
	c := e.srv.SeedContact(model.Contact{Name: "Acme Buyer"})
	e.login("max@x.io", "pw")

	got := dataMap(t, e.mustRun("contacts", "note", c.ID, "Called,", "wants", "a", "demo"))
	anns, _ := got["annotations"].([]any)
	if len(anns) != 1 {
		t.Fatalf("expected one annotation, got %v", got["annotations"])
	}
	a, _ := anns[0].(map[string]any)
	if a["author"] != "Max Member" || a["content"] != "Called, wants a demo" || a["timestamp"] != "2024-05-01T09:30:00.000000" {
		t.Fatalf("unexpected annotation: %v", a)
	}
}

func TestContacts_MemberCannotCreate(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedMember("Max Member", "max@x.io", "pw")
	e.login("max@x.io", "pw")
	e.srv.ResetRequests()

	stderr := e.mustFail("contacts", "create", "--name", "Nope Inc")
	if !strings.Contains(stderr, "contacts.create") {
		t.Fatalf("expected a capability error, got:\n%s", stderr)
	}
	if len(e.srv.Requests()) != 0 {
		t.Fatalf("denied command must not reach the backend, got %v", e.srv.Requests())
	}
}

func TestContacts_FounderCRUD(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.login("fay@x.io", "pw")

	created := dataMap(t, e.mustRun("contacts", "create", "--name", "Lin Park", "--company", "Acme"))
	id, _ := created["id"].(string)
	if id == "" || created["company"] != "Acme" {
		t.Fatalf("unexpected contact: %v", created)
	}

	edited := dataMap(t, e.mustRun("contacts", "edit", id, "--name", "Lin Park", "--position", "CTO"))
	if edited["position"] != "CTO" {
		t.Fatalf("unexpected edit: %v", edited)
	}

	list, _ := e.mustRun("contacts", "list", "--query", "acme")["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected query to match, got %v", list)
	}

	e.mustRun("contacts", "delete", id)
	list, _ = e.mustRun("contacts", "list")["data"].([]any)
	if len(list) != 0 {
		t.Fatalf("expected no contacts after delete, got %v", list)
	}
}

func TestContacts_EditKeepsUnsetFields(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.login("fay@x.io", "pw")

	created := dataMap(t, e.mustRun("contacts", "create", "--name", "Lin Park", "--company", "Acme", "--email", "lin@acme.io"))
	id, _ := created["id"].(string)

	edited := dataMap(t, e.mustRun("contacts", "edit", id, "--phone", "555"))
	if edited["name"] != "Lin Park" || edited["phone"] != "555" {
		t.Fatalf("unexpected edit: %v", edited)
	}
	if edited["company"] != "Acme" || edited["email"] != "lin@acme.io" {
		t.Fatalf("expected untouched fields to survive, got %v", edited)
	}

	shown := dataMap(t, e.mustRun("contacts", "show", id))
	if shown["name"] != "Lin Park" || shown["company"] != "Acme" {
		t.Fatalf("unexpected stored contact: %v", shown)
	}

	cleared := dataMap(t, e.mustRun("contacts", "edit", id, "--company", ""))
	if cleared["company"] != nil || cleared["phone"] != "555" {
		t.Fatalf("expected company cleared, got %v", cleared)
	}
}

func TestTeam_ProvisionSavesCredentials(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.login("fay@x.io", "pw")
	out := t.TempDir()

	env := e.mustRun("team", "provision", "--name", "Nia Obi", "--email", "nia@x.io", "--save-credentials", "--out-dir", out)
	pm := dataMap(t, env)
	if pm["generated_password"] == "" {
		t.Fatalf("expected a generated password, got %v", pm)
	}
	path := filepath.Join(out, "team_member_Nia_Obi_credentials.txt")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("credentials file: %v", err)
	}
	if !strings.Contains(string(b), "nia@x.io") {
		t.Fatalf("credentials file missing email:\n%s", b)
	}

	team, _ := e.mustRun("team", "list")["data"].([]any)
	if len(team) != 1 {
		t.Fatalf("expected the provisioned member, got %v", team)
	}
}

func TestTeam_MemberDeniedBeforeDispatch(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedMember("Max Member", "max@x.io", "pw")
	e.login("max@x.io", "pw")
	e.srv.ResetRequests()

	e.mustFail("team", "list")
	if len(e.srv.Requests()) != 0 {
		t.Fatalf("expected no requests, got %v", e.srv.Requests())
	}
}

func TestLogout_IsIdempotent(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	e.login("fay@x.io", "pw")

	e.mustRun("logout")
	e.mustRun("logout")
	e.mustFail("whoami")
}

func TestMetricsFile_WrittenOnExit(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	path := filepath.Join(t.TempDir(), "crewdesk.prom")

	e.mustRun("--metrics-file", path, "login", "--email", "fay@x.io", "--password", "pw")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(b), "crewdesk_api_requests_total") {
		t.Fatalf("expected request counter in metrics file:\n%s", b)
	}
}

func TestConfigFile_ProvidesDefaults(t *testing.T) {
	e := newCLIEnv(t)
	e.srv.SeedFounder("Fay Founder", "fay@x.io", "pw")
	cfg := "api_url: " + e.srv.APIURL() + "\nsession_backend: sqlite\nformat: json\n"
	if err := os.WriteFile(filepath.Join(e.dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	// No --api-url: it comes from config.yaml.
	_, stderr, err := runCLI(t, []string{"--config-dir", e.dir, "login", "--email", "fay@x.io", "--password", "pw"})
	if err != nil {
		t.Fatalf("login failed: %v\n%s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "session.sqlite")); err != nil {
		t.Fatalf("expected sqlite session store: %v", err)
	}
	if _, _, err := runCLI(t, []string{"--config-dir", e.dir, "whoami"}); err != nil {
		t.Fatalf("whoami with sqlite session failed: %v", err)
	}
}

func TestDocs_ListAndRaw(t *testing.T) {
	e := newCLIEnv(t)

	topics, _ := dataMap(t, e.mustRun("docs"))["topics"].([]any)
	if len(topics) == 0 {
		t.Fatalf("expected topics")
	}

	stdout, _, err := e.run("docs", "tasks", "--raw")
	if err != nil {
		t.Fatalf("docs tasks: %v", err)
	}
	if !strings.HasPrefix(string(stdout), "# Task lifecycle") {
		t.Fatalf("expected raw markdown, got:\n%s", stdout)
	}

	e.mustFail("docs", "missing")
}
