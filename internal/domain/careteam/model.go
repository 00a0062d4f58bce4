package careteam

import "time"

const (
	RolePrimaryClinician = "primary_clinician"
	RoleClinician        = "clinician"
	RoleSupervisor       = "supervisor"
	RoleSocialWorker     = "social_worker"
	RoleCaseManager      = "case_manager"
)

var validMemberRoles = map[string]bool{
	RolePrimaryClinician: true, RoleClinician: true, RoleSupervisor: true,
	RoleSocialWorker: true, RoleCaseManager: true,
}

// Member maps to the care_team_members table. One row per (client, user);
// ending a membership keeps the row for history.
type Member struct {
	ID        int64      `db:"id" json:"id"`
	ClientID  int64      `db:"client_id" json:"client_id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Role      string     `db:"role" json:"role"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
