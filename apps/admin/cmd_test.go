package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/storage/database/dbtest"
	sqlxrepos "github.com/learnwise/backend/storage/database/sqlx"
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := dbtest.PrepareDB(t)

	// start CLI
	return &commandLine{
		db:      db,
		engine:  core.EngineSqlite,
		usrRepo: sqlxrepos.NewUserRepository(db, core.EngineSqlite),
		out:     io.Discard,
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) {
		if pwd == "" {
			return nil, nil
		}
		return []byte(pwd), nil
	}
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) bool {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Equal(t, tt.wantErrStr, err.Error())
	default:
		return assert.NoError(t, err)
	}
	return false
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(db *sqlx.DB, engine, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := dbtest.CreateUser(t, cli.usrRepo, "User", "awe@test.cd", "mdr", user.RoleTeacher, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "awe@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@test.cd"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", "AWE@test.cd"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)

			if tt.check(t, cli.run(append([]string{"admin"}, tt.args...))) {
				refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(tt.pwd))
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	existing := dbtest.CreateUser(t, cli.usrRepo, "Old", "old@test.cd", "mdr", user.RoleStudent, false)

	tests := []struct {
		cliTest
		email       string
		wantName    string
		wantRole    user.Role
		wantProfile bool
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no password", args: []string{"adduser", "--email", "new@test.cd"}, wantErr: errHelp}},
		{
			cliTest: cliTest{
				name: "invalid role", args: []string{"adduser", "--email", "new@test.cd", "--role", "boss"}, pwd: "pwd",
				wantErrStr: `invalid role "boss"`,
			},
		},
		{
			cliTest:  cliTest{name: "new student", args: []string{"adduser", "--email", "Kid@test.cd", "--name", "Kid"}, pwd: "pwd"},
			email:    "kid@test.cd",
			wantName: "Kid", wantRole: user.RoleStudent, wantProfile: true,
		},
		{
			cliTest:  cliTest{name: "new teacher", args: []string{"adduser", "--email", "prof@test.cd", "--role", "teacher"}, pwd: "pwd"},
			email:    "prof@test.cd",
			wantName: "prof@test.cd", wantRole: user.RoleTeacher,
		},
		{
			cliTest:  cliTest{name: "promote existing", args: []string{"adduser", "--email", existing.Email, "--admin"}, pwd: "new-pwd"},
			email:    existing.Email,
			wantName: "Old", wantRole: user.RoleAdmin, wantProfile: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)

			if !tt.check(t, cli.run(append([]string{"admin"}, tt.args...))) {
				return
			}
			usr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{Email: tt.email})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, usr.Name)
			assert.Equal(t, tt.wantRole, usr.Role)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword(tt.pwd))
			assert.Equal(t, tt.wantProfile, usr.Profile != nil)
		})
	}
}
