package diagnosis

import (
	"time"

	"github.com/emhr/emhr/pkg/civil"
)

const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// Diagnosis is a row of the client's problem list. A client has at most one
// active row per code.
type Diagnosis struct {
	ID           int64       `db:"id" json:"id"`
	ClientID     int64       `db:"client_id" json:"client_id"`
	Code         string      `db:"code" json:"code"`
	Description  *string     `db:"description" json:"description,omitempty"`
	Status       string      `db:"status" json:"status"`
	IsPrimary    bool        `db:"is_primary" json:"is_primary"`
	OnsetDate    *civil.Date `db:"onset_date" json:"onset_date,omitempty"`
	ResolvedDate *civil.Date `db:"resolved_date" json:"resolved_date,omitempty"`
	SourceNoteID *int64      `db:"source_note_id" json:"source_note_id,omitempty"`
	CreatedBy    *int64      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Entry is one diagnosis as recorded in a diagnosis note's content.
type Entry struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	IsPrimary   bool        `json:"is_primary"`
	OnsetDate   *civil.Date `json:"onset_date"`
}

// SyncResult lists the codes touched by a sync, per action.
type SyncResult struct {
	Added       []string `json:"added"`
	Updated     []string `json:"updated"`
	Reactivated []string `json:"reactivated"`
	Retired     []string `json:"retired"`
	Unchanged   []string `json:"unchanged"`
}
