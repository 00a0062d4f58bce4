package insurance

import (
	"time"

	"github.com/emhr/emhr/pkg/civil"
)

const (
	PriorityPrimary   = "primary"
	PrioritySecondary = "secondary"
	PriorityTertiary  = "tertiary"
)

var validPriorities = map[string]bool{
	PriorityPrimary: true, PrioritySecondary: true, PriorityTertiary: true,
}

var validRelationships = map[string]bool{
	"self": true, "spouse": true, "child": true, "other": true,
}

// Insurance maps to the insurances table. At most one active row exists per
// (client_id, priority).
type Insurance struct {
	ID              int64       `db:"id" json:"id"`
	ClientID        int64       `db:"client_id" json:"client_id"`
	Priority        string      `db:"priority" json:"priority"`
	PayerName       string      `db:"payer_name" json:"payer_name"`
	PayerID         *string     `db:"payer_id" json:"payer_id,omitempty"`
	PolicyNumber    string      `db:"policy_number" json:"policy_number"`
	GroupNumber     *string     `db:"group_number" json:"group_number,omitempty"`
	SubscriberName  *string     `db:"subscriber_name" json:"subscriber_name,omitempty"`
	SubscriberDOB   *civil.Date `db:"subscriber_dob" json:"subscriber_dob,omitempty"`
	Relationship    *string     `db:"relationship" json:"relationship,omitempty"`
	EffectiveDate   *civil.Date `db:"effective_date" json:"effective_date,omitempty"`
	TerminationDate *civil.Date `db:"termination_date" json:"termination_date,omitempty"`
	Copay           *float64    `db:"copay" json:"copay,omitempty"`
	IsActive        bool        `db:"is_active" json:"is_active"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}
