package documents

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const documentCols = `id, client_id, category, file_name, content_type, size, sha256, storage_key,
	uploaded_by, description, is_deleted, created_at`

func (r *documentRepoPG) scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.ClientID, &d.Category, &d.FileName, &d.ContentType, &d.Size, &d.SHA256,
		&d.StorageKey, &d.UploadedBy, &d.Description, &d.IsDeleted, &d.CreatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "document")
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO documents (client_id, category, file_name, content_type, size, sha256, storage_key,
			uploaded_by, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		d.ClientID, d.Category, d.FileName, d.ContentType, d.Size, d.SHA256, d.StorageKey,
		d.UploadedBy, d.Description,
	).Scan(&d.ID, &d.CreatedAt)
}

func (r *documentRepoPG) GetByID(ctx context.Context, id int64) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *documentRepoPG) ListByClient(ctx context.Context, clientID int64, category string, limit, offset int) ([]*Document, int, error) {
	where := ` WHERE client_id = $1 AND NOT is_deleted`
	args := []any{clientID}
	if category != "" {
		args = append(args, category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		documentCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *documentRepoPG) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE documents SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}
