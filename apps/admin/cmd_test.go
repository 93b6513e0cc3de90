package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/enrollment"
	"github.com/trezcool/maendeleo/core/tracker"
	"github.com/trezcool/maendeleo/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Services, *bytes.Buffer) {
	// set up DB & services
	db := testutil.OpenSQLiteDB(t)
	svcs := testutil.NewServices(t, testutil.SQLStores(db))

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		db:         db.DB,
		engine:     svcs.Conf.Database.Engine,
		courses:    svcs.Enrollments,
		students:   svcs.Students,
		reconciler: svcs.Tracker,
		batchSize:  svcs.Conf.Reconcile.BatchSize,
		out:        out,
	}, svcs, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if !strings.Contains(err.Error(), tt.wantErrStr) {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	var gotEngine string
	gooseRunFunc = func(command string, db *sql.DB, engine string, args ...string) error {
		gotEngine = engine
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "badges", "sql"}},
	}
	runCLITests(t, cli, tests)
	assert.Equal(t, "sqlite3", gotEngine)
}

func Test_commandLine_addCourse(t *testing.T) {
	cli, svcs, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addcourse"}, wantErr: errHelp},
		{name: "no title", args: []string{"addcourse", "-id", "go101"}, wantErr: errHelp},
		{name: "bad deadline", args: []string{"addcourse", "-id", "go101", "-title", "Go", "-deadline", "tomorrow"}, wantErrStr: "invalid deadline"},
		{name: "bad id", args: []string{"addcourse", "-id", "go 101", "-title", "Go"}, wantErrStr: "id"},
		{name: "create", args: []string{"addcourse", "-id", "go101", "-title", "Go", "-max", "2"}},
		{name: "update", args: []string{"addcourse", "-id", "go101", "-title", "Go 101", "-max", "3", "-deadline", "2030-01-02T15:04:05Z"}},
	}
	runCLITests(t, cli, tests)

	c, err := svcs.Enrollments.GetCourse(context.Background(), "go101")
	require.NoError(t, err)
	assert.Equal(t, "Go 101", c.Title)
	assert.Equal(t, 3, c.MaxStudents)
	assert.True(t, c.HasDeadline())

	// JSON output off terminals
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "addcourse", "-id", "go102", "-title", "Go 102"}))
	var printed enrollment.Course
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, "go102", printed.ID)
}

func Test_commandLine_addStudent(t *testing.T) {
	cli, svcs, out := setup(t)
	cli.table = true

	tests := []cliTest{
		{name: "no args", args: []string{"addstudent"}, wantErr: errHelp},
		{name: "no email", args: []string{"addstudent", "-id", "amani"}, wantErr: errHelp},
		{name: "bad email", args: []string{"addstudent", "-id", "amani", "-name", "Amani", "-email", "lol"}, wantErrStr: "email"},
		{name: "create", args: []string{"addstudent", "-id", "amani", "-name", "Amani", "-email", "Amani@Test.cd"}},
	}
	runCLITests(t, cli, tests)

	s, err := svcs.Students.Get(context.Background(), "amani")
	require.NoError(t, err)
	assert.Equal(t, "amani@test.cd", s.Email)
	assert.Contains(t, out.String(), "Email  amani@test.cd")
}

func Test_commandLine_recompute(t *testing.T) {
	cli, svcs, out := setup(t)

	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	testutil.Enroll(t, svcs, "amani", "c1")
	// a ledger write whose rollup never ran
	_, err := svcs.Progress.MarkComplete(context.Background(), "amani", "s1")
	require.NoError(t, err)

	tests := []cliTest{
		{name: "no args", args: []string{"recompute"}, wantErr: errHelp},
		{name: "no course", args: []string{"recompute", "-student", "amani"}, wantErr: errHelp},
		{name: "recompute", args: []string{"recompute", "-student", "amani", "-course", "c1"}},
	}
	runCLITests(t, cli, tests)

	e, err := svcs.Enrollments.Get(context.Background(), "amani", "c1")
	require.NoError(t, err)
	assert.True(t, e.IsCompleted)
	assert.True(t, e.CertificateIssued)
	assert.Contains(t, out.String(), `"transitioned": true`)
}

func Test_commandLine_reconcile(t *testing.T) {
	cli, svcs, out := setup(t)

	testutil.CreateCourse(t, svcs, "c1", 0)
	testutil.CreateSection(t, svcs, "c1", "s1", "")
	for _, id := range []string{"amani", "baraka"} {
		testutil.Enroll(t, svcs, id, "c1")
		_, err := svcs.Progress.MarkComplete(context.Background(), id, "s1")
		require.NoError(t, err)
	}

	tests := []cliTest{
		{name: "bad batch", args: []string{"reconcile", "-batch", "0"}, wantErr: errHelp},
		{name: "reconcile", args: []string{"reconcile"}},
	}
	runCLITests(t, cli, tests)

	var report tracker.ReconcileReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, tracker.ReconcileReport{Checked: 2, Completed: 2, Certificates: 2}, report)
}

func Test_commandLine_unknownCommand(t *testing.T) {
	cli, _, out := setup(t)

	tests := []struct {
		arg  string
		want string
	}{
		{"reconcil", `unknown command "reconcil", did you mean "reconcile"?`},
		{"add-student", `did you mean "addstudent"?`},
		{"lol", ""},
	}
	for _, tt := range tests {
		out.Reset()
		if err := cli.run([]string{"admin", tt.arg}); err != errHelp {
			t.Errorf("cli.run(%s) error = %v, wantErr %v", tt.arg, err, errHelp)
		}
		if tt.want == "" {
			assert.Empty(t, out.String())
		} else {
			assert.Contains(t, out.String(), tt.want)
		}
	}
}
