package billing

import (
	"time"

	"github.com/emhr/emhr/pkg/civil"
)

const (
	StatusPending = "pending"
	StatusBilled  = "billed"
	StatusPaid    = "paid"
	StatusDenied  = "denied"
	StatusVoid    = "void"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusBilled: true, StatusPaid: true, StatusDenied: true, StatusVoid: true,
}

// transitions lists the statuses reachable from each status. A denied
// charge can be billed again after correction.
var transitions = map[string][]string{
	StatusPending: {StatusBilled, StatusVoid},
	StatusBilled:  {StatusPaid, StatusDenied, StatusVoid},
	StatusDenied:  {StatusBilled, StatusVoid},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Charge maps to the charges table. Every charge is backed by a signed note.
type Charge struct {
	ID            int64      `db:"id" json:"id"`
	ClientID      int64      `db:"client_id" json:"client_id"`
	AppointmentID *int64     `db:"appointment_id" json:"appointment_id,omitempty"`
	NoteID        int64      `db:"note_id" json:"note_id"`
	InsuranceID   *int64     `db:"insurance_id" json:"insurance_id,omitempty"`
	ServiceDate   civil.Date `db:"service_date" json:"service_date"`
	CPTCode       string     `db:"cpt_code" json:"cpt_code"`
	Modifiers     *string    `db:"modifiers" json:"modifiers,omitempty"`
	Units         int        `db:"units" json:"units"`
	Fee           float64    `db:"fee" json:"fee"`
	Status        string     `db:"status" json:"status"`
	BilledAt      *time.Time `db:"billed_at" json:"billed_at,omitempty"`
	PaidAmount    *float64   `db:"paid_amount" json:"paid_amount,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Amount is the billed total for the charge.
func (c *Charge) Amount() float64 {
	return c.Fee * float64(c.Units)
}

type ChargeFilter struct {
	ClientID *int64
	Status   string
	From     *civil.Date
	To       *civil.Date
}

type StatusUpdate struct {
	Status     string   `json:"status"`
	PaidAmount *float64 `json:"paid_amount,omitempty"`
}

// StatusTotal is one row of the billing summary.
type StatusTotal struct {
	Status string  `json:"status"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
	Paid   float64 `json:"paid"`
}

type Summary struct {
	Totals []StatusTotal `json:"totals"`
	Count  int           `json:"count"`
	Amount float64       `json:"amount"`
	Paid   float64       `json:"paid"`
}
