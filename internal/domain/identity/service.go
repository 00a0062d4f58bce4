package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
)

const MinPasswordLength = 8

// ErrInvalidCredentials is returned for unknown users, inactive users and
// wrong passwords alike.
var ErrInvalidCredentials = apperr.Unauthorized("invalid username or password")

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

type Service struct {
	users    UserRepository
	logger   zerolog.Logger
	hashCost int
	now      func() time.Time

	// dummyHash is compared against when the username does not exist so
	// that lookups take as long as real password checks.
	dummyHash []byte
}

func NewService(users UserRepository, logger zerolog.Logger) *Service {
	return newService(users, logger, bcrypt.DefaultCost)
}

func newService(users UserRepository, logger zerolog.Logger, cost int) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("emhr-timing-guard"), cost)
	return &Service{
		users:     users,
		logger:    logger,
		hashCost:  cost,
		now:       time.Now,
		dummyHash: dummy,
	}
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", apperr.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (s *Service) validate(ctx context.Context, u *User) error {
	if strings.TrimSpace(u.FirstName) == "" {
		return apperr.Invalid("first_name is required")
	}
	if strings.TrimSpace(u.LastName) == "" {
		return apperr.Invalid("last_name is required")
	}
	if !auth.ValidRole(u.Role) {
		return apperr.Invalid("invalid role: %s", u.Role)
	}
	if u.RequiresSupervision && u.SupervisorID == nil {
		return apperr.Invalid("supervisor_id is required when requires_supervision is set")
	}
	if u.SupervisorID != nil {
		if u.ID != 0 && *u.SupervisorID == u.ID {
			return apperr.Invalid("a user cannot supervise themselves")
		}
		sup, err := s.users.GetByID(ctx, *u.SupervisorID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Invalid("supervisor %d does not exist", *u.SupervisorID)
			}
			return err
		}
		if !sup.IsActive || (sup.Role != auth.RoleSupervisor && sup.Role != auth.RoleAdmin) {
			return apperr.Invalid("user %d cannot act as a supervisor", sup.ID)
		}
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, u *User, password string) error {
	u.Username = strings.TrimSpace(u.Username)
	if !usernamePattern.MatchString(u.Username) {
		return apperr.Invalid("username must be 3-64 letters, digits, dots, dashes or underscores")
	}
	if err := s.validate(ctx, u); err != nil {
		return err
	}
	if _, err := s.users.GetByUsername(ctx, u.Username); err == nil {
		return apperr.Conflict("username %s is already taken", u.Username)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	h, err := s.hash(password)
	if err != nil {
		return err
	}
	u.PasswordHash = h
	u.IsActive = true
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", u.Role).Msg("user created")
	return nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// CurrentAccess reports the stored role and active flag of a user. It backs
// auth.UserLookup so revoked access takes effect on the next request.
func (s *Service) CurrentAccess(ctx context.Context, id int64) (string, bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", false, err
	}
	return u.Role, u.IsActive, nil
}

// UpdateUser replaces the profile fields of an existing user. Username and
// password are not touched.
func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	existing, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	u.Username = existing.Username
	u.PasswordHash = existing.PasswordHash
	u.LastLoginAt = existing.LastLoginAt
	u.CreatedAt = existing.CreatedAt
	if err := s.validate(ctx, u); err != nil {
		return err
	}
	return s.users.Update(ctx, u)
}

func (s *Service) DeactivateUser(ctx context.Context, id int64) error {
	if err := s.users.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", id).Msg("user deactivated")
	return nil
}

func (s *Service) ListUsers(ctx context.Context, filter UserFilter, limit, offset int) ([]*User, int, error) {
	if filter.Role != "" && !auth.ValidRole(filter.Role) {
		return nil, 0, apperr.Invalid("invalid role: %s", filter.Role)
	}
	return s.users.List(ctx, filter, limit, offset)
}

// ChangePassword sets a new password. Unless force is set the current
// password must match.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string, force bool) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !force {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return apperr.Invalid("current password is incorrect")
		}
	}
	h, err := s.hash(next)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, id, h)
}

// Authenticate verifies a username and password for an active user and
// records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil || !u.IsActive {
		s.logger.Warn().Str("username", u.Username).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Error().Err(err).Int64("user_id", u.ID).Msg("failed to record last login")
	} else {
		u.LastLoginAt = &now
	}
	return u, nil
}
