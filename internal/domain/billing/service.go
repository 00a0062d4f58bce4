package billing

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/insurance"
	"github.com/emhr/emhr/internal/domain/notes"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
)

// NoteReader resolves the note a charge is billed against.
type NoteReader interface {
	GetNote(ctx context.Context, p *auth.Principal, id int64) (*notes.Note, error)
}

type InsuranceReader interface {
	GetInsurance(ctx context.Context, p *auth.Principal, id int64) (*insurance.Insurance, error)
	ActivePrimary(ctx context.Context, clientID int64) (*insurance.Insurance, error)
}

var (
	cptPattern      = regexp.MustCompile(`^[0-9]{4}[0-9A-Z]$`)
	modifierPattern = regexp.MustCompile(`^[0-9A-Z]{2}(,[0-9A-Z]{2}){0,3}$`)
)

// maxExportRows bounds a single spreadsheet export.
const maxExportRows = 10000

type Service struct {
	charges   ChargeRepository
	notes     NoteReader
	insurance InsuranceReader
	tx        db.TxRunner
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(charges ChargeRepository, notes NoteReader, ins InsuranceReader, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{charges: charges, notes: notes, insurance: ins, tx: tx, logger: logger, now: time.Now}
}

func validateCharge(c *Charge) error {
	c.CPTCode = strings.ToUpper(strings.TrimSpace(c.CPTCode))
	if c.NoteID == 0 {
		return apperr.Invalid("note_id is required")
	}
	if !cptPattern.MatchString(c.CPTCode) {
		return apperr.Invalid("invalid CPT code: %q", c.CPTCode)
	}
	if c.Modifiers != nil {
		m := strings.ToUpper(strings.ReplaceAll(*c.Modifiers, " ", ""))
		if m == "" {
			c.Modifiers = nil
		} else if !modifierPattern.MatchString(m) {
			return apperr.Invalid("modifiers must be up to four comma separated two character codes")
		} else {
			c.Modifiers = &m
		}
	}
	if c.Units == 0 {
		c.Units = 1
	}
	if c.Units < 0 || c.Units > 99 {
		return apperr.Invalid("units must be between 1 and 99")
	}
	if c.Fee < 0 {
		return apperr.Invalid("fee cannot be negative")
	}
	return nil
}

// CreateCharge records a pending charge for a signed note. The client, service
// date and appointment come from the note. Without an explicit insurance the
// client's active primary policy is billed, if any.
func (s *Service) CreateCharge(ctx context.Context, p *auth.Principal, c *Charge) error {
	if err := validateCharge(c); err != nil {
		return err
	}
	n, err := s.notes.GetNote(ctx, p, c.NoteID)
	if err != nil {
		return err
	}
	if n.Status != notes.StatusSigned || !n.IsLocked {
		return apperr.Conflict("note %d is not signed", n.ID)
	}
	c.ClientID = n.ClientID
	c.ServiceDate = n.ServiceDate
	if c.AppointmentID == nil {
		c.AppointmentID = n.AppointmentID
	}

	if c.InsuranceID != nil {
		ins, err := s.insurance.GetInsurance(ctx, p, *c.InsuranceID)
		if err != nil {
			return err
		}
		if ins.ClientID != c.ClientID {
			return apperr.Invalid("insurance %d does not belong to client %d", ins.ID, c.ClientID)
		}
	} else {
		ins, err := s.insurance.ActivePrimary(ctx, c.ClientID)
		if err != nil {
			return err
		}
		if ins != nil {
			c.InsuranceID = &ins.ID
		}
	}

	c.Status = StatusPending
	c.BilledAt = nil
	c.PaidAmount = nil
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.charges.ExistsForNote(ctx, c.NoteID, c.CPTCode)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("note %d already has a %s charge", c.NoteID, c.CPTCode)
		}
		return s.charges.Create(ctx, c)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("charge_id", c.ID).Int64("note_id", c.NoteID).Str("cpt", c.CPTCode).Msg("charge created")
	return nil
}

func (s *Service) GetCharge(ctx context.Context, id int64) (*Charge, error) {
	return s.charges.GetByID(ctx, id)
}

// UpdateStatus moves a charge along the billing workflow.
func (s *Service) UpdateStatus(ctx context.Context, id int64, req *StatusUpdate) (*Charge, error) {
	if !validStatuses[req.Status] {
		return nil, apperr.Invalid("invalid charge status: %s", req.Status)
	}
	if req.PaidAmount != nil && req.Status != StatusPaid {
		return nil, apperr.Invalid("paid_amount only applies to paid charges")
	}
	if req.Status == StatusPaid {
		if req.PaidAmount == nil {
			return nil, apperr.Invalid("paid_amount is required")
		}
		if *req.PaidAmount < 0 {
			return nil, apperr.Invalid("paid_amount cannot be negative")
		}
	}

	c, err := s.charges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, req.Status) {
		return nil, apperr.Conflict("cannot change charge from %s to %s", c.Status, req.Status)
	}
	switch req.Status {
	case StatusBilled:
		at := s.now().UTC()
		c.BilledAt = &at
	case StatusPaid:
		c.PaidAmount = req.PaidAmount
	}
	from := c.Status
	c.Status = req.Status
	if err := s.charges.UpdateStatus(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("charge_id", c.ID).Str("from", from).Str("to", c.Status).Msg("charge status changed")
	return c, nil
}

func (s *Service) VoidCharge(ctx context.Context, id int64) (*Charge, error) {
	return s.UpdateStatus(ctx, id, &StatusUpdate{Status: StatusVoid})
}

func validateFilter(f ChargeFilter) error {
	if f.Status != "" && !validStatuses[f.Status] {
		return apperr.Invalid("invalid charge status: %s", f.Status)
	}
	if f.From != nil && f.To != nil && f.To.Before(f.From.Time) {
		return apperr.Invalid("to cannot precede from")
	}
	return nil
}

func (s *Service) ListCharges(ctx context.Context, filter ChargeFilter, limit, offset int) ([]*Charge, int, error) {
	if err := validateFilter(filter); err != nil {
		return nil, 0, err
	}
	return s.charges.List(ctx, filter, limit, offset)
}

// Summary totals charges by status. Void charges are listed but left out of
// the grand totals.
func (s *Service) Summary(ctx context.Context, filter ChargeFilter) (*Summary, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	totals, err := s.charges.Summarize(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Status < totals[j].Status })
	sum := &Summary{Totals: totals}
	if sum.Totals == nil {
		sum.Totals = []StatusTotal{}
	}
	for _, t := range totals {
		if t.Status == StatusVoid {
			continue
		}
		sum.Count += t.Count
		sum.Amount += t.Amount
		sum.Paid += t.Paid
	}
	return sum, nil
}

// ExportCharges renders the filtered charges as an XLSX workbook.
func (s *Service) ExportCharges(ctx context.Context, filter ChargeFilter) ([]byte, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	items, total, err := s.charges.List(ctx, filter, maxExportRows, 0)
	if err != nil {
		return nil, err
	}
	if total > maxExportRows {
		return nil, apperr.Invalid("export matches %d charges, narrow the date range (limit %d)", total, maxExportRows)
	}
	return writeWorkbook(items)
}
