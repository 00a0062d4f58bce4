package insurance

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
)

type Service struct {
	repo   Repository
	access careteam.Checker
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, access careteam.Checker, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, tx: tx, logger: logger}
}

func validate(i *Insurance) error {
	i.PayerName = strings.TrimSpace(i.PayerName)
	i.PolicyNumber = strings.TrimSpace(i.PolicyNumber)
	if i.ClientID == 0 {
		return apperr.Invalid("client_id is required")
	}
	if i.Priority == "" {
		i.Priority = PriorityPrimary
	}
	if !validPriorities[i.Priority] {
		return apperr.Invalid("invalid priority: %s", i.Priority)
	}
	if i.PayerName == "" {
		return apperr.Invalid("payer_name is required")
	}
	if i.PolicyNumber == "" {
		return apperr.Invalid("policy_number is required")
	}
	if i.Relationship != nil && !validRelationships[*i.Relationship] {
		return apperr.Invalid("invalid relationship: %s", *i.Relationship)
	}
	if i.Copay != nil && *i.Copay < 0 {
		return apperr.Invalid("copay cannot be negative")
	}
	if i.EffectiveDate != nil && i.TerminationDate != nil && i.TerminationDate.Before(i.EffectiveDate.Time) {
		return apperr.Invalid("termination_date cannot precede effective_date")
	}
	return nil
}

// save writes ins and, when it is active, retires any other active policy
// at the same priority in the same transaction.
func (s *Service) save(ctx context.Context, ins *Insurance, create bool) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if ins.IsActive {
			if err := s.repo.DeactivatePriority(ctx, ins.ClientID, ins.Priority, ins.ID); err != nil {
				return err
			}
		}
		if create {
			return s.repo.Create(ctx, ins)
		}
		return s.repo.Update(ctx, ins)
	})
}

// CreateInsurance stores a new policy. New policies are active.
func (s *Service) CreateInsurance(ctx context.Context, p *auth.Principal, ins *Insurance) error {
	if err := validate(ins); err != nil {
		return err
	}
	if err := careteam.Require(ctx, s.access, p, ins.ClientID); err != nil {
		return err
	}
	ins.IsActive = true
	if err := s.save(ctx, ins, true); err != nil {
		return err
	}
	s.logger.Info().Int64("client_id", ins.ClientID).Str("priority", ins.Priority).Msg("insurance added")
	return nil
}

func (s *Service) GetInsurance(ctx context.Context, p *auth.Principal, id int64) (*Insurance, error) {
	ins, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := careteam.Require(ctx, s.access, p, ins.ClientID); err != nil {
		return nil, err
	}
	return ins, nil
}

// UpdateInsurance replaces the policy fields. The client cannot change.
func (s *Service) UpdateInsurance(ctx context.Context, p *auth.Principal, update *Insurance) (*Insurance, error) {
	ins, err := s.GetInsurance(ctx, p, update.ID)
	if err != nil {
		return nil, err
	}
	update.ClientID = ins.ClientID
	update.CreatedAt = ins.CreatedAt
	if err := validate(update); err != nil {
		return nil, err
	}
	if err := s.save(ctx, update, false); err != nil {
		return nil, err
	}
	return update, nil
}

// DeactivateInsurance keeps the row for billing history.
func (s *Service) DeactivateInsurance(ctx context.Context, p *auth.Principal, id int64) error {
	ins, err := s.GetInsurance(ctx, p, id)
	if err != nil {
		return err
	}
	if !ins.IsActive {
		return nil
	}
	ins.IsActive = false
	return s.repo.Update(ctx, ins)
}

func (s *Service) ListByClient(ctx context.Context, p *auth.Principal, clientID int64, activeOnly bool) ([]*Insurance, error) {
	if err := careteam.Require(ctx, s.access, p, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListByClient(ctx, clientID, activeOnly)
}

// ActivePrimary returns the client's active primary policy, or nil.
func (s *Service) ActivePrimary(ctx context.Context, clientID int64) (*Insurance, error) {
	ins, err := s.repo.GetActive(ctx, clientID, PriorityPrimary)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ins, nil
}
