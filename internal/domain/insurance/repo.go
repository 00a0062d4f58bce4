package insurance

import "context"

type Repository interface {
	Create(ctx context.Context, ins *Insurance) error
	GetByID(ctx context.Context, id int64) (*Insurance, error)
	Update(ctx context.Context, ins *Insurance) error
	ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*Insurance, error)
	GetActive(ctx context.Context, clientID int64, priority string) (*Insurance, error)
	// DeactivatePriority clears is_active on the client's policies at
	// priority, except the row with id exceptID.
	DeactivatePriority(ctx context.Context, clientID int64, priority string, exceptID int64) error
}
