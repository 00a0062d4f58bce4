package treatment

import "context"

type GoalRepository interface {
	Create(ctx context.Context, g *Goal) error
	GetByID(ctx context.Context, id int64) (*Goal, error)
	Update(ctx context.Context, g *Goal) error
	Delete(ctx context.Context, id int64) error
	ListByClient(ctx context.Context, clientID int64, status string) ([]*Goal, error)
}

type InterventionRepository interface {
	Create(ctx context.Context, i *Intervention) error
	GetByID(ctx context.Context, id int64) (*Intervention, error)
	Update(ctx context.Context, i *Intervention) error
	List(ctx context.Context, filter InterventionFilter) ([]*Intervention, error)
}
