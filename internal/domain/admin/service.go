package admin

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/apperr"
)

var (
	npiPattern    = regexp.MustCompile(`^[0-9]{10}$`)
	listIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
)

// Service manages facilities and list options.
type Service struct {
	facilities FacilityRepository
	options    ListOptionRepository
	logger     zerolog.Logger
}

func NewService(facilities FacilityRepository, options ListOptionRepository, logger zerolog.Logger) *Service {
	return &Service{facilities: facilities, options: options, logger: logger}
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validateFacility(f *Facility) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return apperr.Invalid("name is required")
	}
	if len(f.Name) > 200 {
		return apperr.Invalid("name must be at most 200 characters")
	}
	f.NPI = trimOptional(f.NPI)
	if f.NPI != nil && !npiPattern.MatchString(*f.NPI) {
		return apperr.Invalid("npi must be 10 digits")
	}
	f.TaxID = trimOptional(f.TaxID)
	f.Phone = trimOptional(f.Phone)
	f.AddressLine1 = trimOptional(f.AddressLine1)
	f.City = trimOptional(f.City)
	f.State = trimOptional(f.State)
	f.PostalCode = trimOptional(f.PostalCode)
	return nil
}

func (s *Service) CreateFacility(ctx context.Context, f *Facility) error {
	if err := validateFacility(f); err != nil {
		return err
	}
	f.IsActive = true
	return s.facilities.Create(ctx, f)
}

func (s *Service) GetFacility(ctx context.Context, id int64) (*Facility, error) {
	return s.facilities.GetByID(ctx, id)
}

func (s *Service) UpdateFacility(ctx context.Context, f *Facility) error {
	if err := validateFacility(f); err != nil {
		return err
	}
	return s.facilities.Update(ctx, f)
}

// DeactivateFacility hides the facility from pickers. Facilities are never
// removed because appointments and claims refer to them by name.
func (s *Service) DeactivateFacility(ctx context.Context, id int64) error {
	f, err := s.facilities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !f.IsActive {
		return nil
	}
	f.IsActive = false
	return s.facilities.Update(ctx, f)
}

func (s *Service) ListFacilities(ctx context.Context, activeOnly bool) ([]*Facility, error) {
	return s.facilities.List(ctx, activeOnly)
}

func (s *Service) ListOptions(ctx context.Context, listID string, activeOnly bool) ([]*ListOption, error) {
	if !listIDPattern.MatchString(listID) {
		return nil, apperr.Invalid("invalid list id %q", listID)
	}
	return s.options.List(ctx, listID, activeOnly)
}

func (s *Service) ListNames(ctx context.Context) ([]string, error) {
	return s.options.Lists(ctx)
}

func (s *Service) SaveOption(ctx context.Context, o *ListOption) error {
	o.OptionID = strings.TrimSpace(o.OptionID)
	o.Title = strings.TrimSpace(o.Title)
	if !listIDPattern.MatchString(o.ListID) {
		return apperr.Invalid("invalid list id %q", o.ListID)
	}
	if o.OptionID == "" || len(o.OptionID) > 64 {
		return apperr.Invalid("option_id is required and must be at most 64 characters")
	}
	if o.Title == "" {
		return apperr.Invalid("title is required")
	}
	return s.options.Upsert(ctx, o)
}

func (s *Service) DeleteOption(ctx context.Context, listID, optionID string) error {
	return s.options.Delete(ctx, listID, optionID)
}
