package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

type fakeAdmins struct {
	email, name, password string
	err                   error
}

func (f *fakeAdmins) CreateAdmin(_ context.Context, email, fullName, password string) (*models.User, error) {
	f.email, f.name, f.password = email, fullName, password
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u-1", Email: email, Role: models.RoleAdmin}, nil
}

func stubPassword(t *testing.T, pwd string, err error) {
	t.Helper()
	original := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), err }
	t.Cleanup(func() { readPasswordFunc = original })
}

func TestCommandLineMigrate(t *testing.T) {
	var gotCommand string
	var gotArgs []string
	original := migrateFunc
	migrateFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		gotCommand, gotArgs = command, args
		if command == "lol" {
			return errors.New(`"lol": no such command`)
		}
		return nil
	}
	t.Cleanup(func() { migrateFunc = original })

	cli := &commandLine{out: &bytes.Buffer{}}

	assert.ErrorIs(t, cli.run(context.Background(), []string{"admin", "migrate"}), errHelp)

	require.NoError(t, cli.run(context.Background(), []string{"admin", "migrate", "up-to", "2"}))
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, []string{"2"}, gotArgs)

	assert.EqualError(t, cli.run(context.Background(), []string{"admin", "migrate", "lol"}), `"lol": no such command`)
}

func TestCommandLineUsage(t *testing.T) {
	out := &bytes.Buffer{}
	cli := &commandLine{out: out}

	assert.ErrorIs(t, cli.run(context.Background(), []string{"admin"}), errHelp)
	assert.ErrorIs(t, cli.run(context.Background(), []string{"admin", "resetdb"}), errHelp)
	assert.Contains(t, out.String(), "createadmin")
}

func TestCommandLineCreateAdmin(t *testing.T) {
	admins := &fakeAdmins{}
	out := &bytes.Buffer{}
	cli := &commandLine{admins: admins, out: out}

	stubPassword(t, "s3cret-pass", nil)
	require.NoError(t, cli.run(context.Background(), []string{"admin", "createadmin", "-email", "root@learnify.app", "-name", "Root"}))
	assert.Equal(t, "root@learnify.app", admins.email)
	assert.Equal(t, "Root", admins.name)
	assert.Equal(t, "s3cret-pass", admins.password)
	assert.Contains(t, out.String(), "admin root@learnify.app created")
}

func TestCommandLineCreateAdminErrors(t *testing.T) {
	cli := &commandLine{admins: &fakeAdmins{}, out: &bytes.Buffer{}}

	assert.ErrorIs(t, cli.run(context.Background(), []string{"admin", "createadmin", "-email", "root@learnify.app"}), errHelp)

	stubPassword(t, "", nil)
	assert.ErrorIs(t, cli.run(context.Background(), []string{"admin", "createadmin", "-email", "a@b.co", "-name", "A"}), errHelp)

	stubPassword(t, "", errors.New("not a terminal"))
	assert.EqualError(t, cli.run(context.Background(), []string{"admin", "createadmin", "-email", "a@b.co", "-name", "A"}), "not a terminal")

	stubPassword(t, "s3cret-pass", nil)
	cli.admins = &fakeAdmins{err: appErrors.Clone(appErrors.ErrConflict, "email already registered")}
	err := cli.run(context.Background(), []string{"admin", "createadmin", "-email", "a@b.co", "-name", "A"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}
