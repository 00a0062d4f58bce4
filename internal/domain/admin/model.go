package admin

import "time"

// Facility maps to the facilities table.
type Facility struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	NPI          *string   `db:"npi" json:"npi,omitempty"`
	TaxID        *string   `db:"tax_id" json:"tax_id,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	AddressLine1 *string   `db:"address_line1" json:"address_line1,omitempty"`
	City         *string   `db:"city" json:"city,omitempty"`
	State        *string   `db:"state" json:"state,omitempty"`
	PostalCode   *string   `db:"postal_code" json:"postal_code,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ListOption is one entry of a named dropdown list, e.g. list "ethnicity".
type ListOption struct {
	ListID    string `db:"list_id" json:"list_id"`
	OptionID  string `db:"option_id" json:"option_id"`
	Title     string `db:"title" json:"title"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccessLogEntry maps to public.phi_access_log.
type AccessLogEntry struct {
	ID         int64     `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Role       *string   `db:"role" json:"role,omitempty"`
	Resource   *string   `db:"resource" json:"resource,omitempty"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	ClientID   *string   `db:"client_id" json:"client_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Method     string    `db:"method" json:"method"`
	Path       string    `db:"path" json:"path"`
	StatusCode int       `db:"status_code" json:"status_code"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  *string   `db:"user_agent" json:"user_agent,omitempty"`
	RequestID  *string   `db:"request_id" json:"request_id,omitempty"`
	AccessedAt time.Time `db:"accessed_at" json:"accessed_at"`
}

type AccessLogFilter struct {
	TenantID string
	ClientID string
	UserID   *int64
	From     *time.Time
	To       *time.Time
}
