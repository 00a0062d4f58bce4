package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	SetStatus(ctx context.Context, id int64, status string) error
	Cancel(ctx context.Context, ids []int64, reason string) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error)
	// ListSeries returns the open occurrences of a series starting at or after from.
	ListSeries(ctx context.Context, seriesID uuid.UUID, from time.Time) ([]*Appointment, error)
	// FindOverlap returns an open appointment of the provider that intersects
	// [start, end), ignoring the given IDs.
	FindOverlap(ctx context.Context, providerID int64, start, end time.Time, exclude []int64) (*Appointment, error)
	// LockProvider serializes bookings for a provider until the transaction ends.
	LockProvider(ctx context.Context, providerID int64) error
}
