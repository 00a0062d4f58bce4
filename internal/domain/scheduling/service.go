package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/domain/careteam"
	"github.com/emhr/emhr/internal/domain/client"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/metrics"
	"github.com/emhr/emhr/internal/platform/notification"
)

const maxAppointmentLength = 12 * time.Hour

// ClientDirectory resolves the client an appointment is for.
type ClientDirectory interface {
	GetClient(ctx context.Context, p *auth.Principal, id int64) (*client.Client, error)
}

// UserDirectory resolves providers.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*identity.User, error)
}

type Service struct {
	appts    AppointmentRepository
	access   careteam.Checker
	clients  ClientDirectory
	users    UserDirectory
	notifier notification.Notifier
	tx       db.TxRunner
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	appts AppointmentRepository,
	access careteam.Checker,
	clients ClientDirectory,
	users UserDirectory,
	notifier notification.Notifier,
	tx db.TxRunner,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appts:    appts,
		access:   access,
		clients:  clients,
		users:    users,
		notifier: notifier,
		tx:       tx,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func validateTimes(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Invalid("start_time and end_time are required")
	}
	if !end.After(start) {
		return apperr.Invalid("end_time must be after start_time")
	}
	if end.Sub(start) > maxAppointmentLength {
		return apperr.Invalid("appointments cannot exceed %s", maxAppointmentLength)
	}
	return nil
}

func validType(t string) bool {
	_, ok := appointmentTypeLabels[t]
	return ok
}

// checkOverlap rejects a booking that intersects another open appointment of
// the same provider.
func (s *Service) checkOverlap(ctx context.Context, providerID int64, start, end time.Time, exclude []int64) error {
	other, err := s.appts.FindOverlap(ctx, providerID, start, end, exclude)
	if err != nil {
		return err
	}
	if other != nil {
		return apperr.Conflict("provider %d is already booked from %s to %s (appointment %d)",
			providerID, other.StartTime.UTC().Format(time.RFC3339), other.EndTime.UTC().Format(time.RFC3339), other.ID)
	}
	return nil
}

// CreateAppointment books a single appointment or, when a recurrence rule is
// given, every occurrence of the series in one transaction.
func (s *Service) CreateAppointment(ctx context.Context, p *auth.Principal, req *CreateRequest) ([]*Appointment, error) {
	a := req.Appointment
	if a.ClientID == 0 {
		return nil, apperr.Invalid("client_id is required")
	}
	if a.ProviderID == 0 {
		return nil, apperr.Invalid("provider_id is required")
	}
	if a.AppointmentType == "" {
		a.AppointmentType = TypeTherapy
	}
	if !validType(a.AppointmentType) {
		return nil, apperr.Invalid("invalid appointment_type: %s", a.AppointmentType)
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if !isOpen(a.Status) {
		return nil, apperr.Invalid("new appointments must be scheduled or confirmed")
	}
	if err := validateTimes(a.StartTime, a.EndTime); err != nil {
		return nil, err
	}
	if a.AppointmentType == TypeTelehealth && (a.TelehealthURL == nil || *a.TelehealthURL == "") {
		return nil, apperr.Invalid("telehealth_url is required for telehealth appointments")
	}
	occurrences, err := Expand(a.StartTime, a.EndTime, a.Recurrence)
	if err != nil {
		return nil, err
	}
	if len(occurrences) == 0 {
		return nil, apperr.Invalid("recurrence produces no occurrences")
	}
	if err := careteam.Require(ctx, s.access, p, a.ClientID); err != nil {
		return nil, err
	}

	if a.Recurrence != nil {
		sid := uuid.New()
		a.SeriesID = &sid
	} else {
		a.SeriesID = nil
	}
	if p != nil {
		uid := p.UserID
		a.CreatedBy = &uid
	}

	created := make([]*Appointment, 0, len(occurrences))
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.appts.LockProvider(ctx, a.ProviderID); err != nil {
			return err
		}
		for _, occ := range occurrences {
			appt := a
			appt.StartTime, appt.EndTime = occ.Start, occ.End
			if !req.AllowOverlap {
				if err := s.checkOverlap(ctx, appt.ProviderID, appt.StartTime, appt.EndTime, nil); err != nil {
					return err
				}
			}
			if err := s.appts.Create(ctx, &appt); err != nil {
				return err
			}
			created = append(created, &appt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AppointmentsCreated(a.Recurrence != nil, len(created))
	s.logger.Info().
		Int64("client_id", a.ClientID).
		Int64("provider_id", a.ProviderID).
		Int("occurrences", len(created)).
		Msg("appointments created")
	return created, nil
}

func (s *Service) GetAppointment(ctx context.Context, p *auth.Principal, id int64) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, p, a); err != nil {
		return nil, err
	}
	return a, nil
}

// requireAccess lets the provider see their own appointments even when they
// are not on the client's care team.
func (s *Service) requireAccess(ctx context.Context, p *auth.Principal, a *Appointment) error {
	if p != nil && p.UserID == a.ProviderID {
		return nil
	}
	return careteam.Require(ctx, s.access, p, a.ClientID)
}

func applyUpdate(a *Appointment, req *UpdateRequest, shift time.Duration, duration time.Duration) {
	if req.ProviderID != nil {
		a.ProviderID = *req.ProviderID
	}
	if req.AppointmentType != nil {
		a.AppointmentType = *req.AppointmentType
	}
	if req.Location != nil {
		a.Location = req.Location
	}
	if req.TelehealthURL != nil {
		a.TelehealthURL = req.TelehealthURL
	}
	if req.Notes != nil {
		a.Notes = req.Notes
	}
	a.StartTime = a.StartTime.Add(shift)
	a.EndTime = a.StartTime.Add(duration)
}

// UpdateAppointment edits one occurrence (scope "this") or the occurrence and
// every later open occurrence of its series (scope "following"). Time changes
// are applied to the whole range as a shift, and the edited range becomes its
// own series.
func (s *Service) UpdateAppointment(ctx context.Context, p *auth.Principal, id int64, req *UpdateRequest) ([]*Appointment, error) {
	if req.Scope == "" {
		req.Scope = ScopeThis
	}
	if req.Scope != ScopeThis && req.Scope != ScopeFollowing {
		return nil, apperr.Invalid("scope must be this or following")
	}
	if req.AppointmentType != nil && !validType(*req.AppointmentType) {
		return nil, apperr.Invalid("invalid appointment_type: %s", *req.AppointmentType)
	}

	target, err := s.GetAppointment(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !isOpen(target.Status) {
		return nil, apperr.Conflict("cannot edit an appointment that is %s", target.Status)
	}

	newStart, newEnd := target.StartTime, target.EndTime
	if req.StartTime != nil {
		newStart = *req.StartTime
		if req.EndTime == nil {
			newEnd = newStart.Add(target.Duration())
		}
	}
	if req.EndTime != nil {
		newEnd = *req.EndTime
	}
	if err := validateTimes(newStart, newEnd); err != nil {
		return nil, err
	}
	shift := newStart.Sub(target.StartTime)
	duration := newEnd.Sub(newStart)

	batch := []*Appointment{target}
	if req.Scope == ScopeFollowing {
		if target.SeriesID == nil {
			return nil, apperr.Invalid("appointment %d is not part of a series", id)
		}
		batch, err = s.appts.ListSeries(ctx, *target.SeriesID, target.StartTime)
		if err != nil {
			return nil, err
		}
	}

	exclude := make([]int64, len(batch))
	for i, a := range batch {
		exclude[i] = a.ID
	}
	var newSeries *uuid.UUID
	if req.Scope == ScopeFollowing {
		sid := uuid.New()
		newSeries = &sid
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, a := range batch {
			applyUpdate(a, req, shift, duration)
			if a.AppointmentType == TypeTelehealth && (a.TelehealthURL == nil || *a.TelehealthURL == "") {
				return apperr.Invalid("telehealth_url is required for telehealth appointments")
			}
			if newSeries != nil {
				a.SeriesID = newSeries
			}
			if !req.AllowOverlap {
				if err := s.appts.LockProvider(ctx, a.ProviderID); err != nil {
					return err
				}
				if err := s.checkOverlap(ctx, a.ProviderID, a.StartTime, a.EndTime, exclude); err != nil {
					return err
				}
			}
			if err := s.appts.Update(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// CancelAppointment cancels the occurrence, the occurrence and the rest of
// its series, or every open occurrence of the series. It returns the IDs
// cancelled.
func (s *Service) CancelAppointment(ctx context.Context, p *auth.Principal, id int64, req *CancelRequest) ([]int64, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	if req.Scope == "" {
		req.Scope = ScopeThis
	}

	target, err := s.GetAppointment(ctx, p, id)
	if err != nil {
		return nil, err
	}

	var batch []*Appointment
	switch req.Scope {
	case ScopeThis:
		if !isOpen(target.Status) {
			return nil, apperr.Conflict("cannot cancel an appointment that is %s", target.Status)
		}
		batch = []*Appointment{target}
	case ScopeFollowing, ScopeSeries:
		if target.SeriesID == nil {
			return nil, apperr.Invalid("appointment %d is not part of a series", id)
		}
		from := target.StartTime
		if req.Scope == ScopeSeries {
			from = time.Time{}
		}
		batch, err = s.appts.ListSeries(ctx, *target.SeriesID, from)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Invalid("scope must be this, following or series")
	}

	ids := make([]int64, 0, len(batch))
	for _, a := range batch {
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if err := s.appts.Cancel(ctx, ids, req.Reason); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("appointment_id", id).Str("scope", req.Scope).Int("cancelled", len(ids)).Msg("appointments cancelled")
	return ids, nil
}

// SetStatus moves an appointment along the status transition table.
func (s *Service) SetStatus(ctx context.Context, p *auth.Principal, id int64, status string) (*Appointment, error) {
	if status == StatusCancelled {
		return nil, apperr.Invalid("use the cancel endpoint to cancel an appointment")
	}
	if _, ok := statusTransitions[status]; !ok {
		return nil, apperr.Invalid("invalid status: %s", status)
	}
	a, err := s.GetAppointment(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	if !canTransition(a.Status, status) {
		return nil, apperr.Conflict("cannot change status from %s to %s", a.Status, status)
	}
	if err := s.appts.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, p *auth.Principal, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if filter.Status != "" {
		if _, ok := statusTransitions[filter.Status]; !ok {
			return nil, 0, apperr.Invalid("invalid status: %s", filter.Status)
		}
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, 0, apperr.Invalid("to must be after from")
	}
	if p == nil {
		return nil, 0, apperr.Forbidden("authentication required")
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
	return s.appts.List(ctx, filter, limit, offset)
}

// SendReminder queues the appointment-reminder mail to the client.
func (s *Service) SendReminder(ctx context.Context, p *auth.Principal, id int64) error {
	a, err := s.GetAppointment(ctx, p, id)
	if err != nil {
		return err
	}
	if !isOpen(a.Status) {
		return apperr.Conflict("cannot send a reminder for an appointment that is %s", a.Status)
	}
	if !a.StartTime.After(s.now()) {
		return apperr.Conflict("appointment %d has already started", id)
	}
	c, err := s.clients.GetClient(ctx, p, a.ClientID)
	if err != nil {
		return err
	}
	if c.Email == nil || *c.Email == "" {
		return apperr.Invalid("client %d has no email address", c.ID)
	}
	providerName := "your provider"
	if u, err := s.users.GetUser(ctx, a.ProviderID); err == nil {
		providerName = u.FullName()
	}

	location := "to be confirmed"
	switch {
	case a.TelehealthURL != nil && *a.TelehealthURL != "":
		location = *a.TelehealthURL
	case a.Location != nil && *a.Location != "":
		location = *a.Location
	}
	data := map[string]string{
		"client_name":      c.DisplayName(),
		"appointment_type": appointmentTypeLabels[a.AppointmentType],
		"date":             a.StartTime.UTC().Format("Monday, January 2, 2006"),
		"time":             a.StartTime.UTC().Format("3:04 PM MST"),
		"provider":         providerName,
		"location":         location,
	}
	if err := s.notifier.Notify(ctx, notification.TemplateAppointmentReminder, *c.Email, data); err != nil {
		if errors.Is(err, notification.ErrNoRecipient) {
			return apperr.Invalid("client %d has no email address", c.ID)
		}
		return err
	}
	s.logger.Info().Int64("appointment_id", id).Msg("appointment reminder queued")
	return nil
}
