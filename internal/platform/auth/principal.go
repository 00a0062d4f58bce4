package auth

import (
	"context"
)

type contextKey string

const principalKey contextKey = "principal"

// Roles recognised by the API.
const (
	RoleAdmin        = "admin"
	RoleClinician    = "clinician"
	RoleSupervisor   = "supervisor"
	RoleIntern       = "intern"
	RoleSocialWorker = "social_worker"
	RoleBiller       = "biller"
	RoleFrontDesk    = "front_desk"
)

var validRoles = map[string]bool{
	RoleAdmin: true, RoleClinician: true, RoleSupervisor: true, RoleIntern: true,
	RoleSocialWorker: true, RoleBiller: true, RoleFrontDesk: true,
}

// ValidRole reports whether role is one of the recognised roles.
func ValidRole(role string) bool {
	return validRoles[role]
}

// ClinicalRoles may author clinical documentation.
var ClinicalRoles = []string{RoleClinician, RoleSupervisor, RoleIntern, RoleSocialWorker}

// Principal is the authenticated user behind a request.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasRole reports whether the principal holds one of roles. Admins hold every role.
func (p *Principal) HasRole(roles ...string) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// UserIDFromContext returns the authenticated user's ID, or 0.
func UserIDFromContext(ctx context.Context) int64 {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return 0
}
