package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const noteCols = `id, client_id, appointment_id, author_id, note_type, status, content, service_date,
	is_locked, signed_at, signed_by, signature_data, requires_supervisor_review, supervisor_id,
	supervisor_approved_at, supervisor_signature, supervisor_comments, parent_note_id,
	addendum_reason, is_deleted, created_at, updated_at`

func (r *noteRepoPG) scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.ClientID, &n.AppointmentID, &n.AuthorID, &n.NoteType, &n.Status,
		&n.Content, &n.ServiceDate, &n.IsLocked, &n.SignedAt, &n.SignedBy, &n.SignatureData,
		&n.RequiresSupervisorReview, &n.SupervisorID, &n.SupervisorApprovedAt,
		&n.SupervisorSignature, &n.SupervisorComments, &n.ParentNoteID, &n.AddendumReason,
		&n.IsDeleted, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "note")
	}
	return &n, nil
}

func (r *noteRepoPG) collect(rows pgx.Rows) ([]*Note, error) {
	defer rows.Close()
	var out []*Note
	for rows.Next() {
		n, err := r.scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (client_id, appointment_id, author_id, note_type, status, content,
			service_date, requires_supervisor_review, supervisor_id, parent_note_id, addendum_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		n.ClientID, n.AppointmentID, n.AuthorID, n.NoteType, n.Status, n.Content,
		n.ServiceDate, n.RequiresSupervisorReview, n.SupervisorID, n.ParentNoteID, n.AddendumReason,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
}

func (r *noteRepoPG) GetByID(ctx context.Context, id int64) (*Note, error) {
	return r.scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM clinical_notes WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *noteRepoPG) GetForUpdate(ctx context.Context, id int64) (*Note, error) {
	return r.scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM clinical_notes WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id))
}

func (r *noteRepoPG) Update(ctx context.Context, n *Note) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical_notes SET appointment_id = $2, status = $3, content = $4, service_date = $5,
			is_locked = $6, signed_at = $7, signed_by = $8, signature_data = $9,
			requires_supervisor_review = $10, supervisor_id = $11, supervisor_approved_at = $12,
			supervisor_signature = $13, supervisor_comments = $14, addendum_reason = $15,
			updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING updated_at`,
		n.ID, n.AppointmentID, n.Status, n.Content, n.ServiceDate,
		n.IsLocked, n.SignedAt, n.SignedBy, n.SignatureData,
		n.RequiresSupervisorReview, n.SupervisorID, n.SupervisorApprovedAt,
		n.SupervisorSignature, n.SupervisorComments, n.AddendumReason,
	).Scan(&n.UpdatedAt)
	return apperr.FromDB(err, "note")
}

func (r *noteRepoPG) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE clinical_notes SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("note")
	}
	return nil
}

func (r *noteRepoPG) page(ctx context.Context, where []string, args []any, limit, offset int) ([]*Note, int, error) {
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_notes WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM clinical_notes WHERE %s ORDER BY service_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		noteCols, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *noteRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Note, int, error) {
	where := []string{"NOT is_deleted"}
	var args []any
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.AuthorID != nil {
		args = append(args, *f.AuthorID)
		where = append(where, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.NoteType != "" {
		args = append(args, f.NoteType)
		where = append(where, fmt.Sprintf("note_type = $%d", len(args)))
	}
	if f.VisibleTo != nil {
		args = append(args, *f.VisibleTo)
		where = append(where, fmt.Sprintf(`(author_id = $%[1]d OR EXISTS (
			SELECT 1 FROM care_team_members m
			WHERE m.client_id = clinical_notes.client_id AND m.user_id = $%[1]d AND m.is_active))`, len(args)))
	}
	return r.page(ctx, where, args, limit, offset)
}

func (r *noteRepoPG) ListPendingReview(ctx context.Context, supervisorID *int64, limit, offset int) ([]*Note, int, error) {
	where := []string{"NOT is_deleted", "status = 'pending_review'"}
	var args []any
	if supervisorID != nil {
		args = append(args, *supervisorID)
		where = append(where, fmt.Sprintf("supervisor_id = $%d", len(args)))
	}
	return r.page(ctx, where, args, limit, offset)
}

type draftRepoPG struct{ pool *pgxpool.Pool }

func NewDraftRepoPG(pool *pgxpool.Pool) DraftRepository {
	return &draftRepoPG{pool: pool}
}

func (r *draftRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const draftCols = `id, note_id, author_id, client_id, note_type, content, created_at, updated_at`

func scanDraft(row pgx.Row) (*Draft, error) {
	var d Draft
	err := row.Scan(&d.ID, &d.NoteID, &d.AuthorID, &d.ClientID, &d.NoteType, &d.Content,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "draft")
	}
	return &d, nil
}

func (r *draftRepoPG) Upsert(ctx context.Context, d *Draft) error {
	// The two partial unique indexes need separate conflict targets.
	var query string
	if d.NoteID != nil {
		query = `
			INSERT INTO note_drafts (note_id, author_id, client_id, note_type, content)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (note_id) WHERE note_id IS NOT NULL
			DO UPDATE SET content = EXCLUDED.content, author_id = EXCLUDED.author_id, updated_at = NOW()
			RETURNING id, created_at, updated_at`
	} else {
		query = `
			INSERT INTO note_drafts (note_id, author_id, client_id, note_type, content)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (author_id, client_id, note_type) WHERE note_id IS NULL
			DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
			RETURNING id, created_at, updated_at`
	}
	return r.conn(ctx).QueryRow(ctx, query, d.NoteID, d.AuthorID, d.ClientID, d.NoteType, d.Content).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *draftRepoPG) GetByID(ctx context.Context, id int64) (*Draft, error) {
	return scanDraft(r.conn(ctx).QueryRow(ctx, `SELECT `+draftCols+` FROM note_drafts WHERE id = $1`, id))
}

func (r *draftRepoPG) ListByAuthor(ctx context.Context, authorID int64, clientID *int64) ([]*Draft, error) {
	query := `SELECT ` + draftCols + ` FROM note_drafts WHERE author_id = $1`
	args := []any{authorID}
	if clientID != nil {
		args = append(args, *clientID)
		query += ` AND client_id = $2`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *draftRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM note_drafts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("draft")
	}
	return nil
}

func (r *draftRepoPG) DeleteForNote(ctx context.Context, noteID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM note_drafts WHERE note_id = $1`, noteID)
	return err
}
