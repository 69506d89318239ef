// Package roster manages the team members and administrators, and turns
// a username into the Actor every workflow and ledger call requires.
package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// Service wraps a UserStore.
type Service struct {
	users domain.UserStore
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a roster service.
func NewService(users domain.UserStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: users, log: log.Named("roster"), now: time.Now}
}

// Seed makes sure every configured administrator exists. Existing users
// keep their role.
func (s *Service) Seed(admins []string) error {
	for _, name := range admins {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		err := s.users.InsertUser(domain.User{Username: name, Role: domain.RoleAdmin, CreatedAt: s.now()})
		switch {
		case err == nil:
			s.log.Info("administrator seeded", zap.String("user", name))
		case errors.Is(err, domain.ErrUserExists):
		default:
			return fmt.Errorf("seed admin %s: %w", name, err)
		}
	}
	return nil
}

// Resolve returns the actor for a roster user.
func (s *Service) Resolve(username string) (domain.Actor, error) {
	u, err := s.users.GetUser(username)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.ActorFor(*u), nil
}

// Add registers a user. Administrators only.
func (s *Service) Add(actor domain.Actor, username string, role domain.Role) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%s may not add users: %w", actor.Username, domain.ErrPermissionDenied)
	}
	username = strings.TrimSpace(username)
	if username == "" || username == domain.Unassigned {
		return nil, &domain.ValidationError{Field: "username", Reason: fmt.Sprintf("%q is not a usable name", username)}
	}
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}

	u := domain.User{Username: username, Role: role, CreatedAt: s.now()}
	if err := s.users.InsertUser(u); err != nil {
		return nil, err
	}
	s.log.Info("user added", zap.String("actor", actor.Username), zap.String("user", username), zap.String("role", string(role)))
	return &u, nil
}

// List returns users with the given role, or everyone when role is empty.
func (s *Service) List(role domain.Role) ([]domain.User, error) {
	return s.users.ListUsers(role)
}

// Remove deletes a user. Their tasks, penalties and rewards remain on file.
func (s *Service) Remove(actor domain.Actor, username string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%s may not remove users: %w", actor.Username, domain.ErrPermissionDenied)
	}
	if username == actor.Username {
		return &domain.ValidationError{Field: "username", Reason: "administrators cannot remove themselves"}
	}
	if err := s.users.DeleteUser(username); err != nil {
		return err
	}
	s.log.Info("user removed", zap.String("actor", actor.Username), zap.String("user", username))
	return nil
}
