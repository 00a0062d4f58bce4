package client

import (
	"time"

	"github.com/emhr/emhr/pkg/civil"
)

const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusDischarged = "discharged"
	StatusWaitlist   = "waitlist"
)

var validStatuses = map[string]bool{
	StatusActive: true, StatusInactive: true, StatusDischarged: true, StatusWaitlist: true,
}

var validSexes = map[string]bool{
	"male": true, "female": true, "intersex": true, "unknown": true,
}

// Client maps to the clients table. SSN is accepted on input only; at rest it
// is encrypted and only the last four digits are ever returned.
type Client struct {
	ID                       int64       `db:"id" json:"id"`
	MRN                      string      `db:"mrn" json:"mrn"`
	FirstName                string      `db:"first_name" json:"first_name"`
	MiddleName               *string     `db:"middle_name" json:"middle_name,omitempty"`
	LastName                 string      `db:"last_name" json:"last_name"`
	PreferredName            *string     `db:"preferred_name" json:"preferred_name,omitempty"`
	DateOfBirth              civil.Date  `db:"date_of_birth" json:"date_of_birth"`
	Sex                      *string     `db:"sex" json:"sex,omitempty"`
	GenderIdentity           *string     `db:"gender_identity" json:"gender_identity,omitempty"`
	Pronouns                 *string     `db:"pronouns" json:"pronouns,omitempty"`
	Email                    *string     `db:"email" json:"email,omitempty"`
	Phone                    *string     `db:"phone" json:"phone,omitempty"`
	AddressLine1             *string     `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2             *string     `db:"address_line2" json:"address_line2,omitempty"`
	City                     *string     `db:"city" json:"city,omitempty"`
	State                    *string     `db:"state" json:"state,omitempty"`
	PostalCode               *string     `db:"postal_code" json:"postal_code,omitempty"`
	SSN                      string      `db:"-" json:"ssn,omitempty"`
	SSNEncrypted             *string     `db:"ssn_encrypted" json:"-"`
	SSNLastFour              *string     `db:"ssn_last_four" json:"ssn_last_four,omitempty"`
	SSNMasked                string      `db:"-" json:"ssn_masked,omitempty"`
	EmergencyContactName     *string     `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone    *string     `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	EmergencyContactRelation *string     `db:"emergency_contact_relation" json:"emergency_contact_relation,omitempty"`
	PrimaryProviderID        *int64      `db:"primary_provider_id" json:"primary_provider_id,omitempty"`
	Status                   string      `db:"status" json:"status"`
	IntakeDate               *civil.Date `db:"intake_date" json:"intake_date,omitempty"`
	DischargeDate            *civil.Date `db:"discharge_date" json:"discharge_date,omitempty"`
	IsDeleted                bool        `db:"is_deleted" json:"-"`
	CreatedAt                time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time   `db:"updated_at" json:"updated_at"`
}

func (c *Client) DisplayName() string {
	first := c.FirstName
	if c.PreferredName != nil && *c.PreferredName != "" {
		first = *c.PreferredName
	}
	return first + " " + c.LastName
}

// SearchFilter narrows Search. VisibleTo restricts results to clients on that
// user's active care team.
type SearchFilter struct {
	Query      string
	Status     string
	ProviderID *int64
	VisibleTo  *int64
}
