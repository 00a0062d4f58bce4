package treatment

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type goalRepoPG struct{ pool *pgxpool.Pool }

func NewGoalRepoPG(pool *pgxpool.Pool) GoalRepository {
	return &goalRepoPG{pool: pool}
}

func (r *goalRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const goalCols = `id, client_id, note_id, goal_text, objectives, target_date, status, met_at, created_at, updated_at`

func scanGoal(row pgx.Row) (*Goal, error) {
	var g Goal
	err := row.Scan(&g.ID, &g.ClientID, &g.NoteID, &g.GoalText, &g.Objectives, &g.TargetDate,
		&g.Status, &g.MetAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "treatment goal")
	}
	return &g, nil
}

func (r *goalRepoPG) Create(ctx context.Context, g *Goal) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment_goals (client_id, note_id, goal_text, objectives, target_date, status, met_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		g.ClientID, g.NoteID, g.GoalText, g.Objectives, g.TargetDate, g.Status, g.MetAt,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

func (r *goalRepoPG) GetByID(ctx context.Context, id int64) (*Goal, error) {
	return scanGoal(r.conn(ctx).QueryRow(ctx, `SELECT `+goalCols+` FROM treatment_goals WHERE id = $1`, id))
}

func (r *goalRepoPG) Update(ctx context.Context, g *Goal) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment_goals SET note_id = $2, goal_text = $3, objectives = $4, target_date = $5,
			status = $6, met_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		g.ID, g.NoteID, g.GoalText, g.Objectives, g.TargetDate, g.Status, g.MetAt,
	).Scan(&g.UpdatedAt)
	return apperr.FromDB(err, "treatment goal")
}

func (r *goalRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_goals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("treatment goal")
	}
	return nil
}

func (r *goalRepoPG) ListByClient(ctx context.Context, clientID int64, status string) ([]*Goal, error) {
	query := `SELECT ` + goalCols + ` FROM treatment_goals WHERE client_id = $1`
	args := []any{clientID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type interventionRepoPG struct{ pool *pgxpool.Pool }

func NewInterventionRepoPG(pool *pgxpool.Pool) InterventionRepository {
	return &interventionRepoPG{pool: pool}
}

func (r *interventionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const interventionCols = `id, name, category, description, is_active, created_at, updated_at`

func scanIntervention(row pgx.Row) (*Intervention, error) {
	var i Intervention
	err := row.Scan(&i.ID, &i.Name, &i.Category, &i.Description, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "intervention")
	}
	return &i, nil
}

func (r *interventionRepoPG) Create(ctx context.Context, i *Intervention) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO intervention_library (name, category, description, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		i.Name, i.Category, i.Description, i.IsActive,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
	return apperr.FromDB(err, "intervention "+i.Name)
}

func (r *interventionRepoPG) GetByID(ctx context.Context, id int64) (*Intervention, error) {
	return scanIntervention(r.conn(ctx).QueryRow(ctx,
		`SELECT `+interventionCols+` FROM intervention_library WHERE id = $1`, id))
}

func (r *interventionRepoPG) Update(ctx context.Context, i *Intervention) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE intervention_library SET name = $2, category = $3, description = $4, is_active = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		i.ID, i.Name, i.Category, i.Description, i.IsActive,
	).Scan(&i.UpdatedAt)
	return apperr.FromDB(err, "intervention "+i.Name)
}

func (r *interventionRepoPG) List(ctx context.Context, f InterventionFilter) ([]*Intervention, error) {
	var where []string
	var args []any
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	query := `SELECT ` + interventionCols + ` FROM intervention_library`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY category NULLS LAST, name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Intervention
	for rows.Next() {
		i, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
