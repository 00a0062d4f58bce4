package diagnosis

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/pkg/civil"
)

// icd10Code accepts codes such as F32.1, F41.9 and Z63.0.
var icd10Code = regexp.MustCompile(`^[A-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)

type Service struct {
	repo    DiagnosisRepository
	access  careteam.Checker
	tx      db.TxRunner
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo DiagnosisRepository, access careteam.Checker, tx db.TxRunner, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, tx: tx, metrics: m, logger: logger, now: time.Now}
}

func validateEntry(e Entry) error {
	if !icd10Code.MatchString(e.Code) {
		return apperr.Invalid("invalid ICD-10 code: %s", e.Code)
	}
	return nil
}

// Sync applies a signed diagnosis note to the client's problem list. It
// joins the caller's transaction when there is one and emits nothing; see
// Record.
func (s *Service) Sync(ctx context.Context, clientID, noteID, userID int64, entries []Entry) (*SyncResult, error) {
	for _, e := range dedupe(entries) {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
	}

	var plan *Plan
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.LockClient(ctx, clientID)
		if err != nil {
			return err
		}
		plan = BuildPlan(entries, existing, noteID)
		return s.apply(ctx, clientID, noteID, userID, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan.Result(), nil
}

// Record counts and logs an applied sync. Callers invoke it once the
// transaction carrying the sync has committed.
func (s *Service) Record(clientID, noteID int64, result *SyncResult) {
	if result == nil {
		return
	}
	s.metrics.DiagnosesSynced("added", len(result.Added))
	s.metrics.DiagnosesSynced("updated", len(result.Updated))
	s.metrics.DiagnosesSynced("reactivated", len(result.Reactivated))
	s.metrics.DiagnosesSynced("retired", len(result.Retired))
	s.logger.Info().
		Int64("client_id", clientID).
		Int64("note_id", noteID).
		Int("added", len(result.Added)).
		Int("updated", len(result.Updated)).
		Int("reactivated", len(result.Reactivated)).
		Int("retired", len(result.Retired)).
		Msg("diagnoses synced")
}

func writeEntry(d *Diagnosis, e Entry, noteID int64) {
	if e.Description != "" {
		desc := e.Description
		d.Description = &desc
	}
	if e.OnsetDate != nil {
		d.OnsetDate = e.OnsetDate
	}
	d.IsPrimary = e.IsPrimary
	d.SourceNoteID = &noteID
}

func (s *Service) apply(ctx context.Context, clientID, noteID, userID int64, plan *Plan) error {
	today := civil.DateOf(s.now())
	// Retire first so a code moving between rows never trips the unique
	// active index.
	for _, d := range plan.Retire {
		if err := s.repo.Resolve(ctx, d.ID, today); err != nil {
			return err
		}
	}
	for _, c := range plan.Update {
		d := *c.Row
		writeEntry(&d, c.Entry, noteID)
		if err := s.repo.Update(ctx, &d); err != nil {
			return err
		}
	}
	for _, c := range plan.Reactivate {
		d := *c.Row
		writeEntry(&d, c.Entry, noteID)
		d.Status = StatusActive
		d.ResolvedDate = nil
		if err := s.repo.Update(ctx, &d); err != nil {
			return err
		}
	}
	for _, e := range plan.Add {
		d := &Diagnosis{ClientID: clientID, Code: e.Code, Status: StatusActive, CreatedBy: &userID}
		writeEntry(d, e, noteID)
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListDiagnoses(ctx context.Context, p *auth.Principal, clientID int64, status string) ([]*Diagnosis, error) {
	if status != "" && status != StatusActive && status != StatusResolved {
		return nil, apperr.Invalid("status must be active or resolved")
	}
	if err := careteam.Require(ctx, s.access, p, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListByClient(ctx, clientID, status)
}

func (s *Service) getAccessible(ctx context.Context, p *auth.Principal, id int64) (*Diagnosis, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := careteam.Require(ctx, s.access, p, d.ClientID); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDiagnosis adds a diagnosis to the problem list by hand.
func (s *Service) CreateDiagnosis(ctx context.Context, p *auth.Principal, d *Diagnosis) error {
	if d.ClientID == 0 {
		return apperr.Invalid("client_id is required")
	}
	d.Code = NormalizeCode(d.Code)
	if err := validateEntry(Entry{Code: d.Code}); err != nil {
		return err
	}
	if err := careteam.Require(ctx, s.access, p, d.ClientID); err != nil {
		return err
	}
	if d.Description != nil {
		desc := strings.TrimSpace(*d.Description)
		d.Description = &desc
	}
	d.Status = StatusActive
	d.ResolvedDate = nil
	d.SourceNoteID = nil
	if p != nil {
		uid := p.UserID
		d.CreatedBy = &uid
	}
	return s.repo.Create(ctx, d)
}

// UpdateDiagnosis edits description, primary flag and onset of a row. Code
// and status are changed through CreateDiagnosis and ResolveDiagnosis.
func (s *Service) UpdateDiagnosis(ctx context.Context, p *auth.Principal, d *Diagnosis) (*Diagnosis, error) {
	existing, err := s.getAccessible(ctx, p, d.ID)
	if err != nil {
		return nil, err
	}
	if d.Description != nil {
		existing.Description = d.Description
	}
	if d.OnsetDate != nil {
		existing.OnsetDate = d.OnsetDate
	}
	existing.IsPrimary = d.IsPrimary
	if existing.Status != StatusActive && existing.IsPrimary {
		return nil, apperr.Invalid("a resolved diagnosis cannot be primary")
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ResolveDiagnosis marks an active diagnosis resolved on date, or today.
func (s *Service) ResolveDiagnosis(ctx context.Context, p *auth.Principal, id int64, date *civil.Date) (*Diagnosis, error) {
	d, err := s.getAccessible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusActive {
		return nil, apperr.Conflict("diagnosis %s is already resolved", d.Code)
	}
	resolved := civil.DateOf(s.now())
	if date != nil && !date.IsZero() {
		resolved = *date
	}
	if d.OnsetDate != nil && resolved.Before(d.OnsetDate.Time) {
		return nil, apperr.Invalid("resolved_date cannot precede onset_date")
	}
	if err := s.repo.Resolve(ctx, id, resolved); err != nil {
		return nil, err
	}
	d.Status = StatusResolved
	d.ResolvedDate = &resolved
	d.IsPrimary = false
	return d, nil
}
