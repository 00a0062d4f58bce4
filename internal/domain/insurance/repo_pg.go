package insurance

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type insuranceRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &insuranceRepoPG{pool: pool}
}

func (r *insuranceRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const insuranceCols = `id, client_id, priority, payer_name, payer_id, policy_number, group_number,
	subscriber_name, subscriber_dob, relationship, effective_date, termination_date, copay,
	is_active, created_at, updated_at`

func (r *insuranceRepoPG) scanInsurance(row pgx.Row) (*Insurance, error) {
	var i Insurance
	err := row.Scan(&i.ID, &i.ClientID, &i.Priority, &i.PayerName, &i.PayerID, &i.PolicyNumber,
		&i.GroupNumber, &i.SubscriberName, &i.SubscriberDOB, &i.Relationship, &i.EffectiveDate,
		&i.TerminationDate, &i.Copay, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "insurance")
	}
	return &i, nil
}

func (r *insuranceRepoPG) Create(ctx context.Context, i *Insurance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurances (client_id, priority, payer_name, payer_id, policy_number, group_number,
			subscriber_name, subscriber_dob, relationship, effective_date, termination_date, copay, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		i.ClientID, i.Priority, i.PayerName, i.PayerID, i.PolicyNumber, i.GroupNumber,
		i.SubscriberName, i.SubscriberDOB, i.Relationship, i.EffectiveDate, i.TerminationDate,
		i.Copay, i.IsActive,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
	return apperr.FromDB(err, "active "+i.Priority+" insurance")
}

func (r *insuranceRepoPG) GetByID(ctx context.Context, id int64) (*Insurance, error) {
	return r.scanInsurance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+insuranceCols+` FROM insurances WHERE id = $1`, id))
}

func (r *insuranceRepoPG) Update(ctx context.Context, i *Insurance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE insurances SET priority = $2, payer_name = $3, payer_id = $4, policy_number = $5,
			group_number = $6, subscriber_name = $7, subscriber_dob = $8, relationship = $9,
			effective_date = $10, termination_date = $11, copay = $12, is_active = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		i.ID, i.Priority, i.PayerName, i.PayerID, i.PolicyNumber, i.GroupNumber, i.SubscriberName,
		i.SubscriberDOB, i.Relationship, i.EffectiveDate, i.TerminationDate, i.Copay, i.IsActive,
	).Scan(&i.UpdatedAt)
	return apperr.FromDB(err, "active "+i.Priority+" insurance")
}

func (r *insuranceRepoPG) ListByClient(ctx context.Context, clientID int64, activeOnly bool) ([]*Insurance, error) {
	query := `SELECT ` + insuranceCols + ` FROM insurances WHERE client_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY is_active DESC,
		CASE priority WHEN 'primary' THEN 1 WHEN 'secondary' THEN 2 ELSE 3 END, id DESC`
	rows, err := r.conn(ctx).Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Insurance
	for rows.Next() {
		i, err := r.scanInsurance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *insuranceRepoPG) GetActive(ctx context.Context, clientID int64, priority string) (*Insurance, error) {
	return r.scanInsurance(r.conn(ctx).QueryRow(ctx, `
		SELECT `+insuranceCols+` FROM insurances
		WHERE client_id = $1 AND priority = $2 AND is_active`, clientID, priority))
}

func (r *insuranceRepoPG) DeactivatePriority(ctx context.Context, clientID int64, priority string, exceptID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurances SET is_active = FALSE, updated_at = NOW()
		WHERE client_id = $1 AND priority = $2 AND is_active AND id <> $3`,
		clientID, priority, exceptID)
	return err
}
