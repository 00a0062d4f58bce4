package notes

import (
	"encoding/json"
	"time"

	"github.com/emhr/emhr/internal/domain/diagnosis"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/pkg/civil"
)

const (
	TypeProgress      = "progress"
	TypeIntake        = "intake"
	TypeDiagnosis     = "diagnosis"
	TypeTreatmentPlan = "treatment_plan"
	TypeDischarge     = "discharge"
	TypeContact       = "contact"
	TypeGroup         = "group"
	TypeAddendum      = "addendum"
)

var validTypes = map[string]bool{
	TypeProgress: true, TypeIntake: true, TypeDiagnosis: true, TypeTreatmentPlan: true,
	TypeDischarge: true, TypeContact: true, TypeGroup: true, TypeAddendum: true,
}

const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusReturned      = "returned"
	StatusApproved      = "approved"
	StatusSigned        = "signed"
)

var validStatuses = map[string]bool{
	StatusDraft: true, StatusPendingReview: true, StatusReturned: true,
	StatusApproved: true, StatusSigned: true,
}

// Errors callers branch on.
var (
	ErrNoteLocked                 = apperr.Conflict("note is signed and locked")
	ErrSupervisorApprovalRequired = apperr.Forbidden("supervisor approval is required before signing")
)

// Note maps to clinical_notes.
type Note struct {
	ID                       int64           `db:"id" json:"id"`
	ClientID                 int64           `db:"client_id" json:"client_id"`
	AppointmentID            *int64          `db:"appointment_id" json:"appointment_id,omitempty"`
	AuthorID                 int64           `db:"author_id" json:"author_id"`
	NoteType                 string          `db:"note_type" json:"note_type"`
	Status                   string          `db:"status" json:"status"`
	Content                  json.RawMessage `db:"content" json:"content,omitempty"`
	ServiceDate              civil.Date      `db:"service_date" json:"service_date"`
	IsLocked                 bool            `db:"is_locked" json:"is_locked"`
	SignedAt                 *time.Time      `db:"signed_at" json:"signed_at,omitempty"`
	SignedBy                 *int64          `db:"signed_by" json:"signed_by,omitempty"`
	SignatureData            json.RawMessage `db:"signature_data" json:"signature_data,omitempty"`
	RequiresSupervisorReview bool            `db:"requires_supervisor_review" json:"requires_supervisor_review"`
	SupervisorID             *int64          `db:"supervisor_id" json:"supervisor_id,omitempty"`
	SupervisorApprovedAt     *time.Time      `db:"supervisor_approved_at" json:"supervisor_approved_at,omitempty"`
	SupervisorSignature      json.RawMessage `db:"supervisor_signature" json:"supervisor_signature,omitempty"`
	SupervisorComments       *string         `db:"supervisor_comments" json:"supervisor_comments,omitempty"`
	ParentNoteID             *int64          `db:"parent_note_id" json:"parent_note_id,omitempty"`
	AddendumReason           *string         `db:"addendum_reason" json:"addendum_reason,omitempty"`
	IsDeleted                bool            `db:"is_deleted" json:"-"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// editable reports whether the author may still change the note.
func (n *Note) editable() bool {
	return !n.IsLocked && (n.Status == StatusDraft || n.Status == StatusReturned)
}

// Draft is autosaved work in progress, keyed by note_id for an existing note
// or by (author, client, note_type) for a note not created yet.
type Draft struct {
	ID        int64           `db:"id" json:"id"`
	NoteID    *int64          `db:"note_id" json:"note_id,omitempty"`
	AuthorID  int64           `db:"author_id" json:"author_id"`
	ClientID  int64           `db:"client_id" json:"client_id"`
	NoteType  string          `db:"note_type" json:"note_type"`
	Content   json.RawMessage `db:"content" json:"content"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type ListFilter struct {
	ClientID *int64
	AuthorID *int64
	Status   string
	NoteType string
	// VisibleTo limits results to clients on that user's care team.
	VisibleTo *int64
}

// SignRequest is the body of POST /notes/:id/sign.
type SignRequest struct {
	NoteID        int64           `json:"noteId"`
	SignatureData json.RawMessage `json:"signatureData"`
}

// SignResult is returned by SignNote.
type SignResult struct {
	Success       bool                  `json:"success"`
	NoteID        int64                 `json:"noteId"`
	Status        string                `json:"status"`
	SignedAt      time.Time             `json:"signedAt"`
	DiagnosisSync *diagnosis.SyncResult `json:"diagnosisSync,omitempty"`
}

const (
	ReviewApprove = "approve"
	ReviewReturn  = "return"
)

// ReviewRequest is a supervisor's decision on a note pending review.
type ReviewRequest struct {
	Action    string          `json:"action"`
	Comments  string          `json:"comments"`
	Signature json.RawMessage `json:"signature"`
}

type AddendumRequest struct {
	Reason  string          `json:"reason"`
	Content json.RawMessage `json:"content"`
}
