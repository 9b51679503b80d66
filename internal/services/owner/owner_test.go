package owner

import (
	"errors"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	userFunc  func(username string) (*user.User, error)
	groupFunc func(name string) (*user.Group, error)
}

func (m *mockLookup) User(username string) (*user.User, error) {
	if m.userFunc != nil {
		return m.userFunc(username)
	}
	return &user.User{Username: username, Uid: "1001", Gid: "100"}, nil
}

func (m *mockLookup) Group(name string) (*user.Group, error) {
	if m.groupFunc != nil {
		return m.groupFunc(name)
	}
	return &user.Group{Name: name, Gid: "1001"}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestResolve_SameNamedGroup(t *testing.T) {
	svc := NewWithLookup(testLogger(), &mockLookup{}, nil)

	owner, err := svc.Resolve("backup")

	require.NoError(t, err)
	assert.Equal(t, &models.Owner{Username: "backup", UID: 1001, GID: 1001}, owner)
}

func TestResolve_FallsBackToPrimaryGroup(t *testing.T) {
	lookup := &mockLookup{
		groupFunc: func(name string) (*user.Group, error) {
			return nil, user.UnknownGroupError(name)
		},
	}
	svc := NewWithLookup(testLogger(), lookup, nil)

	owner, err := svc.Resolve("backup")

	require.NoError(t, err)
	assert.Equal(t, 1001, owner.UID)
	assert.Equal(t, 100, owner.GID)
}

func TestResolve_UnknownUser(t *testing.T) {
	lookup := &mockLookup{
		userFunc: func(username string) (*user.User, error) {
			return nil, user.UnknownUserError(username)
		},
	}
	svc := NewWithLookup(testLogger(), lookup, nil)

	_, err := svc.Resolve("nobody-here")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to look up user "nobody-here"`)
}

func TestResolve_NonNumericUID(t *testing.T) {
	lookup := &mockLookup{
		userFunc: func(username string) (*user.User, error) {
			return &user.User{Username: username, Uid: "S-1-5-21", Gid: "100"}, nil
		},
	}
	svc := NewWithLookup(testLogger(), lookup, nil)

	_, err := svc.Resolve("backup")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric uid")
}

func TestResolve_CurrentUser(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skip("current user not available")
	}

	owner, err := New(testLogger()).Resolve(current.Username)

	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), owner.UID)
}

func TestApply_Chowns(t *testing.T) {
	var gotPath string
	var gotUID, gotGID int
	chown := func(path string, uid, gid int) error {
		gotPath, gotUID, gotGID = path, uid, gid
		return nil
	}
	svc := NewWithLookup(testLogger(), &mockLookup{}, chown)

	err := svc.Apply("/backup/db1.tar.gz", &models.Owner{Username: "backup", UID: 1001, GID: 1002})

	require.NoError(t, err)
	assert.Equal(t, "/backup/db1.tar.gz", gotPath)
	assert.Equal(t, 1001, gotUID)
	assert.Equal(t, 1002, gotGID)
}

func TestApply_NilOwner(t *testing.T) {
	called := false
	chown := func(path string, uid, gid int) error {
		called = true
		return nil
	}
	svc := NewWithLookup(testLogger(), &mockLookup{}, chown)

	require.NoError(t, svc.Apply("/backup/db1.tar.gz", nil))
	assert.False(t, called)
}

func TestApply_Error(t *testing.T) {
	chown := func(path string, uid, gid int) error {
		return errors.New("operation not permitted")
	}
	svc := NewWithLookup(testLogger(), &mockLookup{}, chown)

	err := svc.Apply("/backup/db1.tar.gz", &models.Owner{Username: "backup", UID: 1001, GID: 1001})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to chown")
	assert.Contains(t, err.Error(), "not permitted")
}

func TestApply_OwnIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db1.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	owner := &models.Owner{Username: "self", UID: os.Getuid(), GID: os.Getgid()}

	assert.NoError(t, New(testLogger()).Apply(path, owner))
}
