package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

// -- Facilities --

type facilityRepoPG struct{ pool *pgxpool.Pool }

func NewFacilityRepoPG(pool *pgxpool.Pool) FacilityRepository {
	return &facilityRepoPG{pool: pool}
}

func (r *facilityRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const facilityCols = `id, name, npi, tax_id, phone, address_line1, city, state, postal_code,
	is_active, created_at, updated_at`

func (r *facilityRepoPG) scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	err := row.Scan(&f.ID, &f.Name, &f.NPI, &f.TaxID, &f.Phone, &f.AddressLine1, &f.City, &f.State,
		&f.PostalCode, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "facility")
	}
	return &f, nil
}

func (r *facilityRepoPG) Create(ctx context.Context, f *Facility) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO facilities (name, npi, tax_id, phone, address_line1, city, state, postal_code, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		f.Name, f.NPI, f.TaxID, f.Phone, f.AddressLine1, f.City, f.State, f.PostalCode, f.IsActive,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

func (r *facilityRepoPG) GetByID(ctx context.Context, id int64) (*Facility, error) {
	return r.scanFacility(r.conn(ctx).QueryRow(ctx,
		`SELECT `+facilityCols+` FROM facilities WHERE id = $1`, id))
}

func (r *facilityRepoPG) Update(ctx context.Context, f *Facility) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE facilities SET name = $2, npi = $3, tax_id = $4, phone = $5, address_line1 = $6,
			city = $7, state = $8, postal_code = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		f.ID, f.Name, f.NPI, f.TaxID, f.Phone, f.AddressLine1, f.City, f.State, f.PostalCode, f.IsActive,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	return apperr.FromDB(err, "facility")
}

func (r *facilityRepoPG) List(ctx context.Context, activeOnly bool) ([]*Facility, error) {
	query := `SELECT ` + facilityCols + ` FROM facilities`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Facility
	for rows.Next() {
		f, err := r.scanFacility(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// -- List options --

type listOptionRepoPG struct{ pool *pgxpool.Pool }

func NewListOptionRepoPG(pool *pgxpool.Pool) ListOptionRepository {
	return &listOptionRepoPG{pool: pool}
}

func (r *listOptionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *listOptionRepoPG) Upsert(ctx context.Context, o *ListOption) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO list_options (list_id, option_id, title, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (list_id, option_id) DO UPDATE
		SET title = EXCLUDED.title, sort_order = EXCLUDED.sort_order, is_active = EXCLUDED.is_active`,
		o.ListID, o.OptionID, o.Title, o.SortOrder, o.IsActive)
	return err
}

func (r *listOptionRepoPG) List(ctx context.Context, listID string, activeOnly bool) ([]*ListOption, error) {
	query := `SELECT list_id, option_id, title, sort_order, is_active FROM list_options WHERE list_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY sort_order, title`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ListOption
	for rows.Next() {
		var o ListOption
		if err := rows.Scan(&o.ListID, &o.OptionID, &o.Title, &o.SortOrder, &o.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *listOptionRepoPG) Lists(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT list_id FROM list_options ORDER BY list_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *listOptionRepoPG) Delete(ctx context.Context, listID, optionID string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM list_options WHERE list_id = $1 AND option_id = $2`, listID, optionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("list option")
	}
	return nil
}

// -- Settings --

type settingRepoPG struct{ pool *pgxpool.Pool }

func NewSettingRepoPG(pool *pgxpool.Pool) SettingRepository {
	return &settingRepoPG{pool: pool}
}

func (r *settingRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *settingRepoPG) Get(ctx context.Context, key string) (*Setting, error) {
	var s Setting
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT key, value, updated_at FROM settings WHERE key = $1`, key,
	).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "setting "+key)
	}
	return &s, nil
}

func (r *settingRepoPG) Upsert(ctx context.Context, s *Setting) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING updated_at`, s.Key, s.Value,
	).Scan(&s.UpdatedAt)
}

func (r *settingRepoPG) List(ctx context.Context) ([]*Setting, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *settingRepoPG) Delete(ctx context.Context, key string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("setting " + key)
	}
	return nil
}

// -- PHI access log --

// accessLogRepoPG writes to the shared public schema, so it uses the pool
// directly rather than the tenant connection.
type accessLogRepoPG struct{ pool *pgxpool.Pool }

func NewAccessLogRepoPG(pool *pgxpool.Pool) AccessLogRepository {
	return &accessLogRepoPG{pool: pool}
}

func (r *accessLogRepoPG) Insert(ctx context.Context, e *AccessLogEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO public.phi_access_log (tenant_id, user_id, role, resource, resource_id, client_id,
			action, method, path, status_code, ip_address, user_agent, request_id, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		e.TenantID, e.UserID, e.Role, e.Resource, e.ResourceID, e.ClientID, e.Action, e.Method,
		e.Path, e.StatusCode, e.IPAddress, e.UserAgent, e.RequestID, e.AccessedAt,
	).Scan(&e.ID)
}

func (r *accessLogRepoPG) List(ctx context.Context, f AccessLogFilter, limit, offset int) ([]*AccessLogEntry, int, error) {
	args := []any{f.TenantID}
	conds := []string{"tenant_id = $1"}
	if f.ClientID != "" {
		args = append(args, f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("accessed_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("accessed_at < $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM public.phi_access_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(tenant_id, ''), user_id, role, resource, resource_id, client_id, action, method,
			path, COALESCE(status_code, 0), ip_address, user_agent, request_id, accessed_at
		FROM public.phi_access_log%s ORDER BY accessed_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*AccessLogEntry
	for rows.Next() {
		var e AccessLogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Role, &e.Resource, &e.ResourceID, &e.ClientID,
			&e.Action, &e.Method, &e.Path, &e.StatusCode, &e.IPAddress, &e.UserAgent, &e.RequestID,
			&e.AccessedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
