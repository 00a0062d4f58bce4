package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type chargeRepoPG struct{ pool *pgxpool.Pool }

func NewChargeRepoPG(pool *pgxpool.Pool) ChargeRepository {
	return &chargeRepoPG{pool: pool}
}

func (r *chargeRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const chargeCols = `id, client_id, appointment_id, note_id, insurance_id, service_date, cpt_code,
	modifiers, units, fee, status, billed_at, paid_amount, created_at, updated_at`

func (r *chargeRepoPG) scanCharge(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.ClientID, &c.AppointmentID, &c.NoteID, &c.InsuranceID, &c.ServiceDate,
		&c.CPTCode, &c.Modifiers, &c.Units, &c.Fee, &c.Status, &c.BilledAt, &c.PaidAmount,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "charge")
	}
	return &c, nil
}

func (r *chargeRepoPG) Create(ctx context.Context, c *Charge) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO charges (client_id, appointment_id, note_id, insurance_id, service_date, cpt_code,
			modifiers, units, fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		c.ClientID, c.AppointmentID, c.NoteID, c.InsuranceID, c.ServiceDate, c.CPTCode,
		c.Modifiers, c.Units, c.Fee, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return err
}

func (r *chargeRepoPG) GetByID(ctx context.Context, id int64) (*Charge, error) {
	return r.scanCharge(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charges WHERE id = $1`, id))
}

func (r *chargeRepoPG) UpdateStatus(ctx context.Context, c *Charge) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE charges SET status = $2, billed_at = $3, paid_amount = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Status, c.BilledAt, c.PaidAmount,
	).Scan(&c.UpdatedAt)
	return apperr.FromDB(err, "charge")
}

func whereClause(f ChargeFilter) (string, []any) {
	var conds []string
	var args []any
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("service_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("service_date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *chargeRepoPG) List(ctx context.Context, filter ChargeFilter, limit, offset int) ([]*Charge, int, error) {
	where, args := whereClause(filter)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM charges`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM charges%s ORDER BY service_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		chargeCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Charge
	for rows.Next() {
		c, err := r.scanCharge(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *chargeRepoPG) ExistsForNote(ctx context.Context, noteID int64, cptCode string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM charges WHERE note_id = $1 AND cpt_code = $2 AND status <> 'void')`,
		noteID, cptCode).Scan(&exists)
	return exists, err
}

func (r *chargeRepoPG) Summarize(ctx context.Context, filter ChargeFilter) ([]StatusTotal, error) {
	where, args := whereClause(filter)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(fee * units), 0)::float8, COALESCE(SUM(paid_amount), 0)::float8
		FROM charges`+where+` GROUP BY status ORDER BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusTotal
	for rows.Next() {
		var t StatusTotal
		if err := rows.Scan(&t.Status, &t.Count, &t.Amount, &t.Paid); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
