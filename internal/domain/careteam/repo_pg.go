package careteam

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type memberRepoPG struct{ pool *pgxpool.Pool }

func NewMemberRepoPG(pool *pgxpool.Pool) MemberRepository {
	return &memberRepoPG{pool: pool}
}

func (r *memberRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const memberCols = `id, client_id, user_id, role, start_date, end_date, is_active, created_at, updated_at`

func (r *memberRepoPG) scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.ClientID, &m.UserID, &m.Role, &m.StartDate, &m.EndDate,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "care team member")
	}
	return &m, nil
}

func (r *memberRepoPG) Upsert(ctx context.Context, m *Member) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO care_team_members (client_id, user_id, role, start_date, is_active)
		VALUES ($1,$2,$3,$4,TRUE)
		ON CONFLICT (client_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			start_date = CASE WHEN care_team_members.is_active
				THEN care_team_members.start_date ELSE EXCLUDED.start_date END,
			end_date = NULL,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING `+memberCols,
		m.ClientID, m.UserID, m.Role, m.StartDate)
	got, err := r.scanMember(row)
	if err != nil {
		return err
	}
	*m = *got
	return nil
}

func (r *memberRepoPG) End(ctx context.Context, clientID, userID int64, endDate time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_team_members SET is_active = FALSE, end_date = $3, updated_at = NOW()
		WHERE client_id = $1 AND user_id = $2 AND is_active`,
		clientID, userID, endDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("care team member")
	}
	return nil
}

func (r *memberRepoPG) ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memberCols+` FROM care_team_members
		WHERE client_id = $1 AND (is_active OR NOT $2)
		ORDER BY is_active DESC, start_date`, clientID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Member
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *memberRepoPG) ListClientIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT client_id FROM care_team_members
		WHERE user_id = $1 AND is_active ORDER BY client_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *memberRepoPG) IsActiveMember(ctx context.Context, clientID, userID int64) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM care_team_members
			WHERE client_id = $1 AND user_id = $2 AND is_active)`, clientID, userID).Scan(&ok)
	return ok, err
}
