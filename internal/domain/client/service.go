package client

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/phi"
	"github.com/emhr/emhr/pkg/civil"
)

// CareTeam is the part of the care team service clients depend on.
type CareTeam interface {
	careteam.Checker
	AddMember(ctx context.Context, m *careteam.Member) error
}

type Service struct {
	clients ClientRepository
	cipher  phi.FieldCipher
	team    CareTeam
	tx      db.TxRunner
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(clients ClientRepository, cipher phi.FieldCipher, team CareTeam, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		clients: clients,
		cipher:  cipher,
		team:    team,
		tx:      tx,
		logger:  logger,
		now:     time.Now,
	}
}

// generatedMRN matches the numbers FormatMRN hands out. Callers may not
// claim one, or a later client would collide with it.
var generatedMRN = regexp.MustCompile(`^[Cc][0-9]{7,}$`)

// FormatMRN renders the generated record number for id.
func FormatMRN(id int64) string {
	return fmt.Sprintf("C%07d", id)
}

// checkMRN trims a caller supplied MRN and rejects the generated format
// unless it is the number the client already holds.
func checkMRN(c *Client, current string) error {
	c.MRN = strings.TrimSpace(c.MRN)
	if c.MRN == "" || c.MRN == current {
		return nil
	}
	if generatedMRN.MatchString(c.MRN) {
		return apperr.Invalid("mrn %s is reserved for generated record numbers", c.MRN)
	}
	return nil
}

func (s *Service) today() civil.Date {
	return civil.DateOf(s.now())
}

func (s *Service) validate(c *Client) error {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	if c.FirstName == "" {
		return apperr.Invalid("first_name is required")
	}
	if c.LastName == "" {
		return apperr.Invalid("last_name is required")
	}
	if c.DateOfBirth.IsZero() {
		return apperr.Invalid("date_of_birth is required")
	}
	if c.DateOfBirth.After(s.today().Time) {
		return apperr.Invalid("date_of_birth cannot be in the future")
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if !validStatuses[c.Status] {
		return apperr.Invalid("invalid status: %s", c.Status)
	}
	if c.Sex != nil && *c.Sex != "" && !validSexes[*c.Sex] {
		return apperr.Invalid("invalid sex: %s", *c.Sex)
	}
	if c.Email != nil && *c.Email != "" && !strings.Contains(*c.Email, "@") {
		return apperr.Invalid("invalid email address")
	}
	if c.DischargeDate != nil && c.IntakeDate != nil && c.DischargeDate.Before(c.IntakeDate.Time) {
		return apperr.Invalid("discharge_date cannot precede intake_date")
	}
	return nil
}

// sealSSN encrypts a newly supplied SSN and clears the plaintext.
func (s *Service) sealSSN(c *Client) error {
	if c.SSN == "" {
		return nil
	}
	normalized, ok := phi.NormalizeSSN(c.SSN)
	if !ok {
		return apperr.Invalid("ssn must contain nine digits")
	}
	enc, err := s.cipher.Encrypt(normalized)
	if err != nil {
		return fmt.Errorf("encrypt ssn: %w", err)
	}
	last := phi.LastFour(normalized)
	c.SSNEncrypted = &enc
	c.SSNLastFour = &last
	c.SSN = ""
	return nil
}

func present(c *Client) *Client {
	c.SSN = ""
	if c.SSNLastFour != nil {
		c.SSNMasked = phi.MaskSSN(*c.SSNLastFour)
	}
	return c
}

func (s *Service) CreateClient(ctx context.Context, p *auth.Principal, c *Client) error {
	if err := s.validate(c); err != nil {
		return err
	}
	if err := checkMRN(c, ""); err != nil {
		return err
	}
	if err := s.sealSSN(c); err != nil {
		return err
	}
	if c.IntakeDate == nil {
		today := s.today()
		c.IntakeDate = &today
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.clients.Create(ctx, c); err != nil {
			return err
		}
		if c.MRN == "" {
			c.MRN = FormatMRN(c.ID)
			if err := s.clients.SetMRN(ctx, c.ID, c.MRN); err != nil {
				return err
			}
		}
		if c.PrimaryProviderID != nil {
			m := &careteam.Member{ClientID: c.ID, UserID: *c.PrimaryProviderID, Role: careteam.RolePrimaryClinician}
			if err := s.team.AddMember(ctx, m); err != nil {
				return err
			}
		}
		// The creating clinician keeps access to the record they opened.
		if p != nil && !careteam.SeesAllClients(p) && p.HasRole(auth.ClinicalRoles...) &&
			(c.PrimaryProviderID == nil || *c.PrimaryProviderID != p.UserID) {
			m := &careteam.Member{ClientID: c.ID, UserID: p.UserID, Role: careteam.RoleClinician}
			if err := s.team.AddMember(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	present(c)
	s.logger.Info().Int64("client_id", c.ID).Str("mrn", c.MRN).Msg("client created")
	return nil
}

func (s *Service) GetClient(ctx context.Context, p *auth.Principal, id int64) (*Client, error) {
	if err := careteam.Require(ctx, s.team, p, id); err != nil {
		return nil, err
	}
	c, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return present(c), nil
}

// UpdateClient replaces the client's fields. An omitted SSN keeps the stored
// one; an omitted MRN keeps the current number.
func (s *Service) UpdateClient(ctx context.Context, p *auth.Principal, c *Client) error {
	if err := careteam.Require(ctx, s.team, p, c.ID); err != nil {
		return err
	}
	existing, err := s.clients.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := s.validate(c); err != nil {
		return err
	}
	if err := checkMRN(c, existing.MRN); err != nil {
		return err
	}
	if c.MRN == "" {
		c.MRN = existing.MRN
	}
	if c.IntakeDate == nil {
		c.IntakeDate = existing.IntakeDate
	}
	if c.SSN == "" {
		c.SSNEncrypted = existing.SSNEncrypted
		c.SSNLastFour = existing.SSNLastFour
	} else if err := s.sealSSN(c); err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.clients.Update(ctx, c); err != nil {
			return err
		}
		changed := c.PrimaryProviderID != nil &&
			(existing.PrimaryProviderID == nil || *existing.PrimaryProviderID != *c.PrimaryProviderID)
		if changed {
			m := &careteam.Member{ClientID: c.ID, UserID: *c.PrimaryProviderID, Role: careteam.RolePrimaryClinician}
			return s.team.AddMember(ctx, m)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	present(c)
	return nil
}

func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	if err := s.clients.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("client_id", id).Msg("client deleted")
	return nil
}

// DischargeClient marks the client discharged on date, or today when date is nil.
func (s *Service) DischargeClient(ctx context.Context, p *auth.Principal, id int64, date *civil.Date) (*Client, error) {
	c, err := s.GetClient(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusDischarged {
		return nil, apperr.Conflict("client %d is already discharged", id)
	}
	d := s.today()
	if date != nil && !date.IsZero() {
		d = *date
	}
	if c.IntakeDate != nil && d.Before(c.IntakeDate.Time) {
		return nil, apperr.Invalid("discharge date cannot precede intake date")
	}
	if err := s.clients.Discharge(ctx, id, d); err != nil {
		return nil, err
	}
	c.Status = StatusDischarged
	c.DischargeDate = &d
	s.logger.Info().Int64("client_id", id).Str("discharge_date", d.String()).Msg("client discharged")
	return c, nil
}

func (s *Service) SearchClients(ctx context.Context, p *auth.Principal, filter SearchFilter, limit, offset int) ([]*Client, int, error) {
	if filter.Status != "" && !validStatuses[filter.Status] {
		return nil, 0, apperr.Invalid("invalid status: %s", filter.Status)
	}
	if p == nil {
		return nil, 0, apperr.Forbidden("authentication required")
	}
	filter.VisibleTo = nil
	if !careteam.SeesAllClients(p) {
		uid := p.UserID
		filter.VisibleTo = &uid
	}
	items, total, err := s.clients.Search(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range items {
		present(c)
	}
	return items, total, nil
}
