package billing

import "context"

type ChargeRepository interface {
	Create(ctx context.Context, c *Charge) error
	GetByID(ctx context.Context, id int64) (*Charge, error)
	UpdateStatus(ctx context.Context, c *Charge) error
	List(ctx context.Context, filter ChargeFilter, limit, offset int) ([]*Charge, int, error)
	// ExistsForNote reports whether a non-void charge with cptCode is
	// already recorded against the note.
	ExistsForNote(ctx context.Context, noteID int64, cptCode string) (bool, error)
	Summarize(ctx context.Context, filter ChargeFilter) ([]StatusTotal, error)
}
