package diagnosis

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/pkg/civil"
)

type diagnosisRepoPG struct{ pool *pgxpool.Pool }

func NewDiagnosisRepoPG(pool *pgxpool.Pool) DiagnosisRepository {
	return &diagnosisRepoPG{pool: pool}
}

func (r *diagnosisRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const diagnosisCols = `id, client_id, code, description, status, is_primary, onset_date,
	resolved_date, source_note_id, created_by, created_at, updated_at`

func (r *diagnosisRepoPG) scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	err := row.Scan(&d.ID, &d.ClientID, &d.Code, &d.Description, &d.Status, &d.IsPrimary,
		&d.OnsetDate, &d.ResolvedDate, &d.SourceNoteID, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "diagnosis")
	}
	return &d, nil
}

func (r *diagnosisRepoPG) collect(rows pgx.Rows) ([]*Diagnosis, error) {
	defer rows.Close()
	var out []*Diagnosis
	for rows.Next() {
		d, err := r.scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *diagnosisRepoPG) Create(ctx context.Context, d *Diagnosis) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnoses (client_id, code, description, status, is_primary, onset_date,
			resolved_date, source_note_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		d.ClientID, d.Code, d.Description, d.Status, d.IsPrimary, d.OnsetDate,
		d.ResolvedDate, d.SourceNoteID, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	return apperr.FromDB(err, "active diagnosis "+d.Code)
}

func (r *diagnosisRepoPG) GetByID(ctx context.Context, id int64) (*Diagnosis, error) {
	return r.scanDiagnosis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+diagnosisCols+` FROM diagnoses WHERE id = $1`, id))
}

func (r *diagnosisRepoPG) Update(ctx context.Context, d *Diagnosis) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnoses SET description = $2, is_primary = $3, onset_date = $4, status = $5,
			resolved_date = $6, source_note_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Description, d.IsPrimary, d.OnsetDate, d.Status, d.ResolvedDate, d.SourceNoteID,
	).Scan(&d.UpdatedAt)
	return apperr.FromDB(err, "active diagnosis "+d.Code)
}

func (r *diagnosisRepoPG) Resolve(ctx context.Context, id int64, date civil.Date) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnoses SET status = 'resolved', resolved_date = $2, is_primary = FALSE, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("active diagnosis")
	}
	return nil
}

func (r *diagnosisRepoPG) ListByClient(ctx context.Context, clientID int64, status string) ([]*Diagnosis, error) {
	query := `SELECT ` + diagnosisCols + ` FROM diagnoses WHERE client_id = $1`
	args := []any{clientID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	query += ` ORDER BY status, is_primary DESC, code`
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *diagnosisRepoPG) LockClient(ctx context.Context, clientID int64) ([]*Diagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+diagnosisCols+` FROM diagnoses WHERE client_id = $1 ORDER BY id FOR UPDATE`, clientID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}
