package diagnosis

import (
	"context"

	"github.com/emhr/emhr/pkg/civil"
)

type DiagnosisRepository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id int64) (*Diagnosis, error)
	// Update writes description, is_primary, onset_date, status,
	// resolved_date and source_note_id.
	Update(ctx context.Context, d *Diagnosis) error
	Resolve(ctx context.Context, id int64, date civil.Date) error
	ListByClient(ctx context.Context, clientID int64, status string) ([]*Diagnosis, error)
	// LockClient returns every row of the client's problem list, locking
	// them until the transaction ends.
	LockClient(ctx context.Context, clientID int64) ([]*Diagnosis, error)
}
