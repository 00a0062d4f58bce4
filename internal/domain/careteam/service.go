package careteam

import (
	"context"
	"time"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
)

// Checker answers whether a principal may see a client's record.
type Checker interface {
	CanAccess(ctx context.Context, p *auth.Principal, clientID int64) (bool, error)
}

// Require returns a forbidden error unless p may access clientID.
func Require(ctx context.Context, c Checker, p *auth.Principal, clientID int64) error {
	ok, err := c.CanAccess(ctx, p, clientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("not on the care team for client %d", clientID)
	}
	return nil
}

// organizationWide roles reach every client. Clinical endpoints are closed
// to them by role checks, so this only widens demographic, scheduling and
// billing access.
var organizationWide = map[string]bool{
	auth.RoleAdmin:     true,
	auth.RoleFrontDesk: true,
	auth.RoleBiller:    true,
}

type Service struct {
	members MemberRepository
	now     func() time.Time
}

func NewService(members MemberRepository) *Service {
	return &Service{members: members, now: time.Now}
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

func (s *Service) AddMember(ctx context.Context, m *Member) error {
	if m.ClientID == 0 {
		return apperr.Invalid("client_id is required")
	}
	if m.UserID == 0 {
		return apperr.Invalid("user_id is required")
	}
	if m.Role == "" {
		m.Role = RoleClinician
	}
	if !validMemberRoles[m.Role] {
		return apperr.Invalid("invalid care team role: %s", m.Role)
	}
	if m.StartDate.IsZero() {
		m.StartDate = s.today()
	}
	return s.members.Upsert(ctx, m)
}

func (s *Service) RemoveMember(ctx context.Context, clientID, userID int64) error {
	return s.members.End(ctx, clientID, userID, s.today())
}

func (s *Service) ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*Member, error) {
	return s.members.ListByClient(ctx, clientID, activeOnly)
}

func (s *Service) ListClientsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.members.ListClientIDsForUser(ctx, userID)
}

// SeesAllClients reports whether p bypasses care team membership.
func SeesAllClients(p *auth.Principal) bool {
	return p != nil && organizationWide[p.Role]
}

func (s *Service) CanAccess(ctx context.Context, p *auth.Principal, clientID int64) (bool, error) {
	if p == nil {
		return false, nil
	}
	if SeesAllClients(p) {
		return true, nil
	}
	return s.members.IsActiveMember(ctx, clientID, p.UserID)
}
