package treatment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
)

type Service struct {
	goals         GoalRepository
	interventions InterventionRepository
	access        careteam.Checker
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(goals GoalRepository, interventions InterventionRepository, access careteam.Checker, logger zerolog.Logger) *Service {
	return &Service{goals: goals, interventions: interventions, access: access, logger: logger, now: time.Now}
}

func validateGoal(g *Goal) error {
	g.GoalText = strings.TrimSpace(g.GoalText)
	if g.GoalText == "" {
		return apperr.Invalid("goal_text is required")
	}
	if len(g.Objectives) > 0 && !json.Valid(g.Objectives) {
		return apperr.Invalid("objectives must be valid JSON")
	}
	return nil
}

// setStatus keeps met_at in step with the status.
func (s *Service) setStatus(g *Goal, status string) error {
	if !validGoalStatuses[status] {
		return apperr.Invalid("invalid goal status: %s", status)
	}
	if status == GoalMet {
		if g.Status != GoalMet || g.MetAt == nil {
			at := s.now().UTC()
			g.MetAt = &at
		}
	} else {
		g.MetAt = nil
	}
	g.Status = status
	return nil
}

func (s *Service) CreateGoal(ctx context.Context, p *auth.Principal, g *Goal) error {
	if g.ClientID == 0 {
		return apperr.Invalid("client_id is required")
	}
	if err := validateGoal(g); err != nil {
		return err
	}
	if err := careteam.Require(ctx, s.access, p, g.ClientID); err != nil {
		return err
	}
	status := g.Status
	if status == "" {
		status = GoalActive
	}
	g.Status = ""
	if err := s.setStatus(g, status); err != nil {
		return err
	}
	return s.goals.Create(ctx, g)
}

func (s *Service) getGoal(ctx context.Context, p *auth.Principal, id int64) (*Goal, error) {
	g, err := s.goals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := careteam.Require(ctx, s.access, p, g.ClientID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) GetGoal(ctx context.Context, p *auth.Principal, id int64) (*Goal, error) {
	return s.getGoal(ctx, p, id)
}

// UpdateGoal rewrites text, objectives, target date and note link. The
// status changes through SetGoalStatus.
func (s *Service) UpdateGoal(ctx context.Context, p *auth.Principal, update *Goal) (*Goal, error) {
	if err := validateGoal(update); err != nil {
		return nil, err
	}
	g, err := s.getGoal(ctx, p, update.ID)
	if err != nil {
		return nil, err
	}
	g.GoalText = update.GoalText
	if update.Objectives != nil {
		g.Objectives = update.Objectives
	}
	g.TargetDate = update.TargetDate
	if update.NoteID != nil {
		g.NoteID = update.NoteID
	}
	if err := s.goals.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) SetGoalStatus(ctx context.Context, p *auth.Principal, id int64, status string) (*Goal, error) {
	g, err := s.getGoal(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(g, status); err != nil {
		return nil, err
	}
	if err := s.goals.Update(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("goal_id", g.ID).Str("status", status).Msg("treatment goal status changed")
	return g, nil
}

func (s *Service) DeleteGoal(ctx context.Context, p *auth.Principal, id int64) error {
	if _, err := s.getGoal(ctx, p, id); err != nil {
		return err
	}
	return s.goals.Delete(ctx, id)
}

func (s *Service) ListGoals(ctx context.Context, p *auth.Principal, clientID int64, status string) ([]*Goal, error) {
	if status != "" && !validGoalStatuses[status] {
		return nil, apperr.Invalid("invalid goal status: %s", status)
	}
	if err := careteam.Require(ctx, s.access, p, clientID); err != nil {
		return nil, err
	}
	return s.goals.ListByClient(ctx, clientID, status)
}

func validateIntervention(i *Intervention) error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return apperr.Invalid("name is required")
	}
	if len(i.Name) > 200 {
		return apperr.Invalid("name must be at most 200 characters")
	}
	return nil
}

func (s *Service) CreateIntervention(ctx context.Context, i *Intervention) error {
	if err := validateIntervention(i); err != nil {
		return err
	}
	i.IsActive = true
	return s.interventions.Create(ctx, i)
}

func (s *Service) GetIntervention(ctx context.Context, id int64) (*Intervention, error) {
	return s.interventions.GetByID(ctx, id)
}

func (s *Service) UpdateIntervention(ctx context.Context, i *Intervention) error {
	if err := validateIntervention(i); err != nil {
		return err
	}
	if _, err := s.interventions.GetByID(ctx, i.ID); err != nil {
		return err
	}
	return s.interventions.Update(ctx, i)
}

func (s *Service) ListInterventions(ctx context.Context, filter InterventionFilter) ([]*Intervention, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	return s.interventions.List(ctx, filter)
}
