package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, client_id, provider_id, appointment_type, status, start_time, end_time,
	location, telehealth_url, notes, cancellation_reason, series_id, recurrence, is_deleted,
	created_by, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.ProviderID, &a.AppointmentType, &a.Status,
		&a.StartTime, &a.EndTime, &a.Location, &a.TelehealthURL, &a.Notes,
		&a.CancellationReason, &a.SeriesID, &a.Recurrence, &a.IsDeleted,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "appointment")
	}
	return &a, nil
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (client_id, provider_id, appointment_type, status, start_time,
			end_time, location, telehealth_url, notes, series_id, recurrence, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at, updated_at`,
		a.ClientID, a.ProviderID, a.AppointmentType, a.Status, a.StartTime, a.EndTime,
		a.Location, a.TelehealthURL, a.Notes, a.SeriesID, a.Recurrence, a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET provider_id=$2, appointment_type=$3, start_time=$4, end_time=$5,
			location=$6, telehealth_url=$7, notes=$8, series_id=$9, updated_at=NOW()
		WHERE id = $1 AND NOT is_deleted`,
		a.ID, a.ProviderID, a.AppointmentType, a.StartTime, a.EndTime,
		a.Location, a.TelehealthURL, a.Notes, a.SeriesID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status=$2, updated_at=NOW() WHERE id = $1 AND NOT is_deleted`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) Cancel(ctx context.Context, ids []int64, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status='cancelled', cancellation_reason=$2, updated_at=NOW()
		WHERE id = ANY($1) AND status IN ('scheduled', 'confirmed')`, ids, reason)
	return err
}

func (r *appointmentRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"NOT is_deleted"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProviderID != nil {
		add("provider_id = $%d", *filter.ProviderID)
	}
	if filter.ClientID != nil {
		add("client_id = $%d", *filter.ClientID)
	}
	if filter.SeriesID != nil {
		add("series_id = $%d", *filter.SeriesID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		add("end_time > $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_time < $%d", *filter.To)
	}
	if filter.VisibleTo != nil {
		args = append(args, *filter.VisibleTo)
		n := len(args)
		where = append(where, fmt.Sprintf(`(provider_id = $%d OR EXISTS (SELECT 1 FROM care_team_members ct
			WHERE ct.client_id = appointments.client_id AND ct.user_id = $%d AND ct.is_active))`, n, n))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+apptCols+` FROM appointments%s ORDER BY start_time, id LIMIT $%d OFFSET $%d`,
			clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListSeries(ctx context.Context, seriesID uuid.UUID, from time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE series_id = $1 AND start_time >= $2 AND NOT is_deleted
			AND status IN ('scheduled', 'confirmed')
		ORDER BY start_time`, seriesID, from)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) FindOverlap(ctx context.Context, providerID int64, start, end time.Time, exclude []int64) (*Appointment, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2
			AND status IN ('scheduled', 'confirmed', 'arrived')
			AND NOT is_deleted AND NOT (id = ANY($4))
		ORDER BY start_time LIMIT 1`, providerID, start, end, exclude))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) LockProvider(ctx context.Context, providerID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, providerID)
	return err
}
