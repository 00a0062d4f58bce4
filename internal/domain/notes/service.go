package notes

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/domain/diagnosis"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/internal/platform/notification"
	"github.com/emhr/emhr/pkg/civil"
)

// UserDirectory resolves authors and supervisors.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*identity.User, error)
}

// DiagnosisSyncer applies a signed diagnosis note to the problem list.
// Record runs only after the signing transaction commits.
type DiagnosisSyncer interface {
	Sync(ctx context.Context, clientID, noteID, userID int64, entries []diagnosis.Entry) (*diagnosis.SyncResult, error)
	Record(clientID, noteID int64, result *diagnosis.SyncResult)
}

type Service struct {
	notes     NoteRepository
	drafts    DraftRepository
	access    careteam.Checker
	users     UserDirectory
	diagnoses DiagnosisSyncer
	notifier  notification.Notifier
	tx        db.TxRunner
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	notes NoteRepository,
	drafts DraftRepository,
	access careteam.Checker,
	users UserDirectory,
	diagnoses DiagnosisSyncer,
	notifier notification.Notifier,
	tx db.TxRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		notes:     notes,
		drafts:    drafts,
		access:    access,
		users:     users,
		diagnoses: diagnoses,
		notifier:  notifier,
		tx:        tx,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func validContent(content json.RawMessage) error {
	if len(content) == 0 {
		return nil
	}
	if !json.Valid(content) {
		return apperr.Invalid("content must be valid JSON")
	}
	return nil
}

// canView lets the author and the assigned supervisor see a note even when
// they are not on the client's care team.
func (s *Service) canView(ctx context.Context, p *auth.Principal, n *Note) error {
	if p != nil && (p.UserID == n.AuthorID || (n.SupervisorID != nil && *n.SupervisorID == p.UserID)) {
		return nil
	}
	return careteam.Require(ctx, s.access, p, n.ClientID)
}

func requireAuthor(p *auth.Principal, n *Note) error {
	if p == nil || (p.UserID != n.AuthorID && !p.IsAdmin()) {
		return apperr.Forbidden("only the author can change note %d", n.ID)
	}
	return nil
}

// CreateNote starts a draft note authored by p. Authors who require
// supervision get their supervisor attached for review.
func (s *Service) CreateNote(ctx context.Context, p *auth.Principal, n *Note) error {
	if p == nil {
		return apperr.Unauthorized("authentication required")
	}
	if n.ClientID == 0 {
		return apperr.Invalid("client_id is required")
	}
	if n.NoteType == "" {
		n.NoteType = TypeProgress
	}
	if n.NoteType == TypeAddendum {
		return apperr.Invalid("addenda are created from the signed note")
	}
	if !validTypes[n.NoteType] {
		return apperr.Invalid("invalid note_type: %s", n.NoteType)
	}
	if err := validContent(n.Content); err != nil {
		return err
	}
	if err := careteam.Require(ctx, s.access, p, n.ClientID); err != nil {
		return err
	}

	author, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	n.AuthorID = author.ID
	n.Status = StatusDraft
	n.IsLocked = false
	n.SignedAt, n.SignedBy, n.SignatureData = nil, nil, nil
	n.SupervisorApprovedAt, n.SupervisorSignature, n.SupervisorComments = nil, nil, nil
	n.ParentNoteID, n.AddendumReason = nil, nil
	n.RequiresSupervisorReview = author.RequiresSupervision
	n.SupervisorID = nil
	if author.RequiresSupervision {
		if author.SupervisorID == nil {
			return apperr.Invalid("author requires supervision but has no supervisor assigned")
		}
		sid := *author.SupervisorID
		n.SupervisorID = &sid
	}
	if n.ServiceDate.IsZero() {
		n.ServiceDate = civil.DateOf(s.now())
	}

	if err := s.notes.Create(ctx, n); err != nil {
		return err
	}
	s.logger.Info().Int64("note_id", n.ID).Int64("client_id", n.ClientID).Str("note_type", n.NoteType).Msg("note created")
	return nil
}

func (s *Service) GetNote(ctx context.Context, p *auth.Principal, id int64) (*Note, error) {
	n, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, p, n); err != nil {
		return nil, err
	}
	return n, nil
}

// editableBy loads a note the principal may still edit.
func (s *Service) editableBy(ctx context.Context, p *auth.Principal, id int64) (*Note, error) {
	n, err := s.GetNote(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if n.IsLocked {
		return nil, ErrNoteLocked
	}
	if err := requireAuthor(p, n); err != nil {
		return nil, err
	}
	if !n.editable() {
		return nil, apperr.Conflict("note is %s and cannot be edited", n.Status)
	}
	return n, nil
}

// UpdateNote replaces the content, service date and appointment of a draft
// or returned note.
func (s *Service) UpdateNote(ctx context.Context, p *auth.Principal, update *Note) (*Note, error) {
	if err := validContent(update.Content); err != nil {
		return nil, err
	}
	n, err := s.editableBy(ctx, p, update.ID)
	if err != nil {
		return nil, err
	}
	if update.Content != nil {
		n.Content = update.Content
	}
	if !update.ServiceDate.IsZero() {
		n.ServiceDate = update.ServiceDate
	}
	if update.AppointmentID != nil {
		n.AppointmentID = update.AppointmentID
	}
	if err := s.notes.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// DeleteNote soft-deletes a draft along with its autosaved drafts.
func (s *Service) DeleteNote(ctx context.Context, p *auth.Principal, id int64) error {
	n, err := s.editableBy(ctx, p, id)
	if err != nil {
		return err
	}
	if n.Status != StatusDraft {
		return apperr.Conflict("only draft notes can be deleted")
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.drafts.DeleteForNote(ctx, id); err != nil {
			return err
		}
		return s.notes.SoftDelete(ctx, id)
	})
}

// SubmitForReview hands a note to the author's supervisor.
func (s *Service) SubmitForReview(ctx context.Context, p *auth.Principal, id int64) (*Note, error) {
	n, err := s.editableBy(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !n.RequiresSupervisorReview {
		return nil, apperr.Invalid("note %d does not require supervisor review", id)
	}
	if n.SupervisorID == nil {
		return nil, apperr.Invalid("note %d has no supervisor assigned", id)
	}
	n.Status = StatusPendingReview
	if err := s.notes.Update(ctx, n); err != nil {
		return nil, err
	}

	author := s.displayName(ctx, n.AuthorID)
	s.notify(ctx, notification.TemplateNoteReviewRequested, *n.SupervisorID, map[string]string{
		"note_id":      strconv.FormatInt(n.ID, 10),
		"author":       author,
		"note_type":    n.NoteType,
		"service_date": n.ServiceDate.String(),
	})
	s.logger.Info().Int64("note_id", n.ID).Int64("supervisor_id", *n.SupervisorID).Msg("note submitted for review")
	return n, nil
}

// ReviewNote records the supervisor's decision on a pending note.
func (s *Service) ReviewNote(ctx context.Context, p *auth.Principal, id int64, req *ReviewRequest) (*Note, error) {
	if req.Action != ReviewApprove && req.Action != ReviewReturn {
		return nil, apperr.Invalid("action must be approve or return")
	}
	comments := strings.TrimSpace(req.Comments)
	if req.Action == ReviewReturn && comments == "" {
		return nil, apperr.Invalid("comments are required when returning a note")
	}
	if err := validContent(req.Signature); err != nil {
		return nil, err
	}

	n, err := s.GetNote(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p == nil || (!p.IsAdmin() && (n.SupervisorID == nil || *n.SupervisorID != p.UserID)) {
		return nil, apperr.Forbidden("only the assigned supervisor can review note %d", id)
	}
	if n.Status != StatusPendingReview {
		return nil, apperr.Conflict("note is %s, not pending review", n.Status)
	}

	if comments != "" {
		n.SupervisorComments = &comments
	}
	template := notification.TemplateNoteApproved
	if req.Action == ReviewApprove {
		at := s.now().UTC()
		n.Status = StatusApproved
		n.SupervisorApprovedAt = &at
		n.SupervisorSignature = req.Signature
	} else {
		template = notification.TemplateNoteReturned
		n.Status = StatusReturned
		n.SupervisorApprovedAt = nil
		n.SupervisorSignature = nil
	}
	if err := s.notes.Update(ctx, n); err != nil {
		return nil, err
	}

	s.notify(ctx, template, n.AuthorID, map[string]string{
		"note_id":    strconv.FormatInt(n.ID, 10),
		"supervisor": s.displayName(ctx, p.UserID),
		"note_type":  n.NoteType,
		"comments":   comments,
	})
	s.logger.Info().Int64("note_id", n.ID).Str("action", req.Action).Int64("reviewer_id", p.UserID).Msg("note reviewed")
	return n, nil
}

// SignNote signs and locks a note. The row stays locked for the whole
// transaction, which also carries the diagnosis sync of diagnosis notes.
func (s *Service) SignNote(ctx context.Context, p *auth.Principal, id int64, req *SignRequest) (*SignResult, error) {
	if p == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	if req.NoteID != 0 && req.NoteID != id {
		return nil, apperr.Invalid("noteId does not match the note being signed")
	}
	if err := validContent(req.SignatureData); err != nil {
		return nil, err
	}

	result := &SignResult{NoteID: id}
	var signed *Note
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.notes.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.canView(ctx, p, n); err != nil {
			return err
		}
		if n.IsLocked || n.Status == StatusSigned {
			return ErrNoteLocked
		}
		if err := requireAuthor(p, n); err != nil {
			return err
		}
		if n.RequiresSupervisorReview && (n.Status != StatusApproved || n.SupervisorApprovedAt == nil) {
			return ErrSupervisorApprovalRequired
		}
		if n.Status == StatusPendingReview {
			return apperr.Conflict("note is pending review")
		}

		at := s.now().UTC()
		uid := p.UserID
		n.Status = StatusSigned
		n.IsLocked = true
		n.SignedAt = &at
		n.SignedBy = &uid
		n.SignatureData = req.SignatureData
		if err := s.notes.Update(ctx, n); err != nil {
			return err
		}

		if n.NoteType == TypeDiagnosis {
			entries, err := diagnosis.EntriesFromContent(n.Content)
			if err != nil {
				return err
			}
			sync, err := s.diagnoses.Sync(ctx, n.ClientID, n.ID, uid, entries)
			if err != nil {
				return err
			}
			result.DiagnosisSync = sync
		}
		signed = n
		return s.drafts.DeleteForNote(ctx, n.ID)
	})
	if err != nil {
		return nil, err
	}

	if result.DiagnosisSync != nil {
		s.diagnoses.Record(signed.ClientID, signed.ID, result.DiagnosisSync)
	}
	s.metrics.NoteSigned(signed.NoteType)
	s.logger.Info().
		Int64("note_id", signed.ID).
		Int64("client_id", signed.ClientID).
		Int64("signed_by", p.UserID).
		Str("note_type", signed.NoteType).
		Msg("note signed")

	result.Success = true
	result.Status = signed.Status
	result.SignedAt = *signed.SignedAt
	return result, nil
}

// CreateAddendum opens a draft addendum against a signed note.
func (s *Service) CreateAddendum(ctx context.Context, p *auth.Principal, parentID int64, req *AddendumRequest) (*Note, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	if err := validContent(req.Content); err != nil {
		return nil, err
	}
	parent, err := s.GetNote(ctx, p, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != StatusSigned {
		return nil, apperr.Conflict("addenda can only be added to signed notes")
	}
	pid := parent.ID
	n := &Note{
		ClientID:       parent.ClientID,
		AppointmentID:  parent.AppointmentID,
		AuthorID:       p.UserID,
		NoteType:       TypeAddendum,
		Status:         StatusDraft,
		Content:        req.Content,
		ServiceDate:    civil.DateOf(s.now()),
		ParentNoteID:   &pid,
		AddendumReason: &reason,
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("note_id", n.ID).Int64("parent_note_id", pid).Msg("addendum created")
	return n, nil
}

func (s *Service) ListNotes(ctx context.Context, p *auth.Principal, filter ListFilter, limit, offset int) ([]*Note, int, error) {
	if filter.Status != "" && !validStatuses[filter.Status] {
		return nil, 0, apperr.Invalid("invalid status: %s", filter.Status)
	}
	if filter.NoteType != "" && !validTypes[filter.NoteType] {
		return nil, 0, apperr.Invalid("invalid note_type: %s", filter.NoteType)
	}
	if p == nil {
		return nil, 0, apperr.Unauthorized("authentication required")
	}
	filter.VisibleTo = nil
	if !careteam.SeesAllClients(p) {
		if filter.ClientID != nil {
			if err := careteam.Require(ctx, s.access, p, *filter.ClientID); err != nil {
				return nil, 0, err
			}
		} else {
			uid := p.UserID
			filter.VisibleTo = &uid
		}
	}
	return s.notes.List(ctx, filter, limit, offset)
}

// ListPendingReview returns the review queue of a supervisor. Admins see
// every queue unless they ask for one supervisor.
func (s *Service) ListPendingReview(ctx context.Context, p *auth.Principal, supervisorID *int64, limit, offset int) ([]*Note, int, error) {
	if p == nil {
		return nil, 0, apperr.Unauthorized("authentication required")
	}
	if !p.IsAdmin() {
		uid := p.UserID
		supervisorID = &uid
	}
	return s.notes.ListPendingReview(ctx, supervisorID, limit, offset)
}

// SaveDraft autosaves content for an existing note or for a note that has
// not been created yet.
func (s *Service) SaveDraft(ctx context.Context, p *auth.Principal, d *Draft) error {
	if p == nil {
		return apperr.Unauthorized("authentication required")
	}
	if err := validContent(d.Content); err != nil {
		return err
	}
	if d.NoteID != nil {
		n, err := s.editableBy(ctx, p, *d.NoteID)
		if err != nil {
			return err
		}
		d.ClientID = n.ClientID
		d.NoteType = n.NoteType
	} else {
		if d.ClientID == 0 {
			return apperr.Invalid("client_id is required")
		}
		if d.NoteType == "" {
			d.NoteType = TypeProgress
		}
		if !validTypes[d.NoteType] || d.NoteType == TypeAddendum {
			return apperr.Invalid("invalid note_type: %s", d.NoteType)
		}
		if err := careteam.Require(ctx, s.access, p, d.ClientID); err != nil {
			return err
		}
	}
	d.AuthorID = p.UserID
	if d.Content == nil {
		d.Content = json.RawMessage(`{}`)
	}
	return s.drafts.Upsert(ctx, d)
}

func (s *Service) ownDraft(ctx context.Context, p *auth.Principal, id int64) (*Draft, error) {
	d, err := s.drafts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || (d.AuthorID != p.UserID && !p.IsAdmin()) {
		return nil, apperr.NotFound("draft")
	}
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, p *auth.Principal, id int64) (*Draft, error) {
	return s.ownDraft(ctx, p, id)
}

func (s *Service) ListDrafts(ctx context.Context, p *auth.Principal, clientID *int64) ([]*Draft, error) {
	if p == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	return s.drafts.ListByAuthor(ctx, p.UserID, clientID)
}

func (s *Service) DeleteDraft(ctx context.Context, p *auth.Principal, id int64) error {
	if _, err := s.ownDraft(ctx, p, id); err != nil {
		return err
	}
	return s.drafts.Delete(ctx, id)
}

func (s *Service) displayName(ctx context.Context, userID int64) string {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "user " + strconv.FormatInt(userID, 10)
	}
	return u.FullName()
}

// notify mails userID. Delivery problems are logged; the workflow step has
// already been committed.
func (s *Service) notify(ctx context.Context, templateID string, userID int64, data map[string]string) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Str("template", templateID).Msg("notification recipient lookup failed")
		return
	}
	if u.Email == nil || *u.Email == "" {
		s.logger.Warn().Int64("user_id", userID).Str("template", templateID).Msg("notification skipped: user has no email")
		return
	}
	if err := s.notifier.Notify(ctx, templateID, *u.Email, data); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Str("template", templateID).Msg("notification not queued")
	}
}
