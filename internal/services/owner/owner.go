// Package owner resolves the account that should own backup artifacts and applies it.
package owner

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for ownership operations.
type Service interface {
	Resolve(username string) (*models.Owner, error)
	Apply(path string, owner *models.Owner) error
}

// Lookup allows mocking the os/user database in tests.
type Lookup interface {
	User(username string) (*user.User, error)
	Group(name string) (*user.Group, error)
}

// SystemLookup is the default Lookup using os/user.
type SystemLookup struct{}

// User looks up a user by name.
func (SystemLookup) User(username string) (*user.User, error) {
	return user.Lookup(username)
}

// Group looks up a group by name.
func (SystemLookup) Group(name string) (*user.Group, error) {
	return user.LookupGroup(name)
}

// ChownFunc changes a file's numeric owner.
type ChownFunc func(path string, uid, gid int) error

// Impl implements the owner Service interface.
type Impl struct {
	lookup Lookup
	chown  ChownFunc
	logger zerolog.Logger
}

// New creates a new owner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		lookup: SystemLookup{},
		chown:  os.Chown,
		logger: logger,
	}
}

// NewWithLookup creates a new owner service with custom lookup and chown (for testing).
func NewWithLookup(logger zerolog.Logger, lookup Lookup, chown ChownFunc) *Impl {
	return &Impl{
		lookup: lookup,
		chown:  chown,
		logger: logger,
	}
}

// Resolve finds the uid of username and the gid of the group with the same name.
// When no such group exists the user's primary group is used.
func (s *Impl) Resolve(username string) (*models.Owner, error) {
	u, err := s.lookup.User(username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("user %q has non-numeric uid %q", username, u.Uid)
	}

	gidStr := u.Gid
	if g, err := s.lookup.Group(username); err == nil {
		gidStr = g.Gid
	} else {
		s.logger.Debug().
			Err(err).
			Str("user", username).
			Str("gid", u.Gid).
			Msg("no group named after user, using primary group")
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("group of user %q has non-numeric gid %q", username, gidStr)
	}

	return &models.Owner{
		Username: username,
		UID:      uid,
		GID:      gid,
	}, nil
}

// Apply chowns path to owner. A nil owner is a no-op.
func (s *Impl) Apply(path string, owner *models.Owner) error {
	if owner == nil {
		return nil
	}

	if err := s.chown(path, owner.UID, owner.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %s (%d:%d): %w", path, owner.Username, owner.UID, owner.GID, err)
	}

	s.logger.Debug().
		Str("path", path).
		Str("owner", owner.Username).
		Msg("ownership applied")

	return nil
}
