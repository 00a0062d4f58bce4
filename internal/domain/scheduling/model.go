package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeIntake        = "intake"
	TypeTherapy       = "therapy"
	TypePsychEval     = "psych_eval"
	TypeMedManagement = "med_management"
	TypeGroup         = "group"
	TypeTelehealth    = "telehealth"
	TypeOther         = "other"
)

var appointmentTypeLabels = map[string]string{
	TypeIntake:        "intake",
	TypeTherapy:       "therapy",
	TypePsychEval:     "psychological evaluation",
	TypeMedManagement: "medication management",
	TypeGroup:         "group",
	TypeTelehealth:    "telehealth",
	TypeOther:         "other",
}

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusArrived   = "arrived"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// statusTransitions lists the statuses reachable from each status.
// Cancellation goes through CancelAppointment so a reason is always recorded.
var statusTransitions = map[string][]string{
	StatusScheduled: {StatusConfirmed, StatusArrived, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusScheduled, StatusArrived, StatusCompleted, StatusNoShow},
	StatusArrived:   {StatusCompleted},
	StatusNoShow:    {StatusScheduled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// isOpen reports whether the appointment can still be edited or cancelled.
func isOpen(status string) bool {
	return status == StatusScheduled || status == StatusConfirmed
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID                 int64           `db:"id" json:"id"`
	ClientID           int64           `db:"client_id" json:"client_id"`
	ProviderID         int64           `db:"provider_id" json:"provider_id"`
	AppointmentType    string          `db:"appointment_type" json:"appointment_type"`
	Status             string          `db:"status" json:"status"`
	StartTime          time.Time       `db:"start_time" json:"start_time"`
	EndTime            time.Time       `db:"end_time" json:"end_time"`
	Location           *string         `db:"location" json:"location,omitempty"`
	TelehealthURL      *string         `db:"telehealth_url" json:"telehealth_url,omitempty"`
	Notes              *string         `db:"notes" json:"notes,omitempty"`
	CancellationReason *string         `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	SeriesID           *uuid.UUID      `db:"series_id" json:"series_id,omitempty"`
	Recurrence         *RecurrenceRule `db:"recurrence" json:"recurrence,omitempty"`
	IsDeleted          bool            `db:"is_deleted" json:"-"`
	CreatedBy          *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// ListFilter narrows ListAppointments. VisibleTo limits results to the
// user's own appointments and clients on their care team.
type ListFilter struct {
	ProviderID *int64
	ClientID   *int64
	SeriesID   *uuid.UUID
	Status     string
	From       *time.Time
	To         *time.Time
	VisibleTo  *int64
}

const (
	ScopeThis      = "this"
	ScopeFollowing = "following"
	ScopeSeries    = "series"
)

// CreateRequest is the body of POST /appointments.
type CreateRequest struct {
	Appointment
	AllowOverlap bool `json:"allow_overlap"`
}

// UpdateRequest is the body of PUT /appointments/:id. Nil fields are left unchanged.
type UpdateRequest struct {
	Scope           string     `json:"scope"`
	ProviderID      *int64     `json:"provider_id"`
	AppointmentType *string    `json:"appointment_type"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Location        *string    `json:"location"`
	TelehealthURL   *string    `json:"telehealth_url"`
	Notes           *string    `json:"notes"`
	AllowOverlap    bool       `json:"allow_overlap"`
}

// CancelRequest is the body of POST /appointments/:id/cancel.
type CancelRequest struct {
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
}
