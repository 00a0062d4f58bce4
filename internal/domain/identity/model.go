package identity

import (
	"time"

	"github.com/emhr/emhr/internal/platform/auth"
)

// User maps to the users table. PasswordHash never leaves the server.
type User struct {
	ID                  int64      `db:"id" json:"id"`
	Username            string     `db:"username" json:"username"`
	Email               *string    `db:"email" json:"email,omitempty"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	Role                string     `db:"role" json:"role"`
	Credentials         *string    `db:"credentials" json:"credentials,omitempty"`
	NPI                 *string    `db:"npi" json:"npi,omitempty"`
	SupervisorID        *int64     `db:"supervisor_id" json:"supervisor_id,omitempty"`
	RequiresSupervision bool       `db:"requires_supervision" json:"requires_supervision"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Principal returns the authenticated identity for u within tenantID.
func (u *User) Principal(tenantID string) *auth.Principal {
	return &auth.Principal{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		TenantID: tenantID,
	}
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role       string
	ActiveOnly bool
}
