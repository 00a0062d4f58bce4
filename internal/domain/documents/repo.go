package documents

import "context"

type Repository interface {
	Create(ctx context.Context, d *Document) error
	// GetByID does not return soft deleted documents.
	GetByID(ctx context.Context, id int64) (*Document, error)
	ListByClient(ctx context.Context, clientID int64, category string, limit, offset int) ([]*Document, int, error)
	SoftDelete(ctx context.Context, id int64) error
}
