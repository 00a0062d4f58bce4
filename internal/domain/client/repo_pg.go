package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/pkg/civil"
)

type clientRepoPG struct{ pool *pgxpool.Pool }

func NewClientRepoPG(pool *pgxpool.Pool) ClientRepository {
	return &clientRepoPG{pool: pool}
}

func (r *clientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const clientCols = `id, COALESCE(mrn, ''), first_name, middle_name, last_name, preferred_name,
	date_of_birth, sex, gender_identity, pronouns, email, phone, address_line1, address_line2,
	city, state, postal_code, ssn_encrypted, ssn_last_four, emergency_contact_name,
	emergency_contact_phone, emergency_contact_relation, primary_provider_id, status,
	intake_date, discharge_date, is_deleted, created_at, updated_at`

func (r *clientRepoPG) scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.MRN, &c.FirstName, &c.MiddleName, &c.LastName, &c.PreferredName,
		&c.DateOfBirth, &c.Sex, &c.GenderIdentity, &c.Pronouns, &c.Email, &c.Phone,
		&c.AddressLine1, &c.AddressLine2, &c.City, &c.State, &c.PostalCode,
		&c.SSNEncrypted, &c.SSNLastFour, &c.EmergencyContactName, &c.EmergencyContactPhone,
		&c.EmergencyContactRelation, &c.PrimaryProviderID, &c.Status,
		&c.IntakeDate, &c.DischargeDate, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, apperr.FromDB(err, "client")
	}
	return &c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *clientRepoPG) Create(ctx context.Context, c *Client) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clients (mrn, first_name, middle_name, last_name, preferred_name,
			date_of_birth, sex, gender_identity, pronouns, email, phone, address_line1,
			address_line2, city, state, postal_code, ssn_encrypted, ssn_last_four,
			emergency_contact_name, emergency_contact_phone, emergency_contact_relation,
			primary_provider_id, status, intake_date, discharge_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING id, created_at, updated_at`,
		nullIfEmpty(c.MRN), c.FirstName, c.MiddleName, c.LastName, c.PreferredName,
		c.DateOfBirth, c.Sex, c.GenderIdentity, c.Pronouns, c.Email, c.Phone, c.AddressLine1,
		c.AddressLine2, c.City, c.State, c.PostalCode, c.SSNEncrypted, c.SSNLastFour,
		c.EmergencyContactName, c.EmergencyContactPhone, c.EmergencyContactRelation,
		c.PrimaryProviderID, c.Status, c.IntakeDate, c.DischargeDate,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return apperr.FromDB(err, "mrn")
}

func (r *clientRepoPG) GetByID(ctx context.Context, id int64) (*Client, error) {
	return r.scanClient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+clientCols+` FROM clients WHERE id = $1 AND NOT is_deleted`, id))
}

func (r *clientRepoPG) Update(ctx context.Context, c *Client) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clients SET mrn=$2, first_name=$3, middle_name=$4, last_name=$5, preferred_name=$6,
			date_of_birth=$7, sex=$8, gender_identity=$9, pronouns=$10, email=$11, phone=$12,
			address_line1=$13, address_line2=$14, city=$15, state=$16, postal_code=$17,
			ssn_encrypted=$18, ssn_last_four=$19, emergency_contact_name=$20,
			emergency_contact_phone=$21, emergency_contact_relation=$22, primary_provider_id=$23,
			status=$24, intake_date=$25, discharge_date=$26, updated_at=NOW()
		WHERE id = $1 AND NOT is_deleted`,
		c.ID, nullIfEmpty(c.MRN), c.FirstName, c.MiddleName, c.LastName, c.PreferredName,
		c.DateOfBirth, c.Sex, c.GenderIdentity, c.Pronouns, c.Email, c.Phone,
		c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode,
		c.SSNEncrypted, c.SSNLastFour, c.EmergencyContactName,
		c.EmergencyContactPhone, c.EmergencyContactRelation, c.PrimaryProviderID,
		c.Status, c.IntakeDate, c.DischargeDate)
	if err != nil {
		return apperr.FromDB(err, "mrn")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("client")
	}
	return nil
}

func (r *clientRepoPG) SetMRN(ctx context.Context, id int64, mrn string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE clients SET mrn=$2 WHERE id = $1`, id, mrn)
	return apperr.FromDB(err, "mrn")
}

func (r *clientRepoPG) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE clients SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("client")
	}
	return nil
}

func (r *clientRepoPG) Discharge(ctx context.Context, id int64, date civil.Date) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clients SET status = 'discharged', discharge_date = $2, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`, id, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("client")
	}
	return nil
}

func (r *clientRepoPG) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Client, int, error) {
	where := []string{"NOT is_deleted"}
	var args []any
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(lower(first_name || ' ' || last_name) LIKE $%d OR lower(COALESCE(preferred_name, '')) LIKE $%d OR lower(COALESCE(mrn, '')) LIKE $%d)",
			n, n, n))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProviderID != nil {
		args = append(args, *filter.ProviderID)
		where = append(where, fmt.Sprintf("primary_provider_id = $%d", len(args)))
	}
	if filter.VisibleTo != nil {
		args = append(args, *filter.VisibleTo)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM care_team_members ct WHERE ct.client_id = clients.id AND ct.user_id = $%d AND ct.is_active)",
			len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clients`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+clientCols+` FROM clients%s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
			clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Client
	for rows.Next() {
		c, err := r.scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
