package notes

import "context"

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, id int64) (*Note, error)
	// GetForUpdate reads the note and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Note, error)
	// Update writes every mutable column.
	Update(ctx context.Context, n *Note) error
	SoftDelete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Note, int, error)
	ListPendingReview(ctx context.Context, supervisorID *int64, limit, offset int) ([]*Note, int, error)
}

type DraftRepository interface {
	// Upsert inserts or replaces the draft with the same key.
	Upsert(ctx context.Context, d *Draft) error
	GetByID(ctx context.Context, id int64) (*Draft, error)
	ListByAuthor(ctx context.Context, authorID int64, clientID *int64) ([]*Draft, error)
	Delete(ctx context.Context, id int64) error
	DeleteForNote(ctx context.Context, noteID int64) error
}
