package admin

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/internal/platform/middleware"
)

const recordTimeout = 2 * time.Second

// AccessLog persists audit entries to public.phi_access_log and serves them
// back to administrators.
type AccessLog struct {
	repo          AccessLogRepository
	defaultTenant string
	logger        zerolog.Logger
}

func NewAccessLog(repo AccessLogRepository, defaultTenant string, logger zerolog.Logger) *AccessLog {
	return &AccessLog{repo: repo, defaultTenant: defaultTenant, logger: logger}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RecordAccess implements middleware.AuditRecorder.
func (a *AccessLog) RecordAccess(entry middleware.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	row := &AccessLogEntry{
		TenantID:   entry.TenantID,
		Role:       optional(entry.Role),
		Resource:   optional(entry.Resource),
		ResourceID: optional(entry.ResourceID),
		ClientID:   optional(entry.ClientID),
		Action:     entry.Action,
		Method:     entry.Method,
		Path:       entry.Path,
		StatusCode: entry.StatusCode,
		IPAddress:  optional(entry.IPAddress),
		UserAgent:  optional(entry.UserAgent),
		RequestID:  optional(entry.RequestID),
		AccessedAt: entry.Timestamp,
	}
	if row.TenantID == "" {
		row.TenantID = a.defaultTenant
	}
	if entry.UserID != 0 {
		uid := entry.UserID
		row.UserID = &uid
	}
	if len(row.Path) > 512 {
		row.Path = row.Path[:512]
	}
	if row.UserAgent != nil && len(*row.UserAgent) > 512 {
		ua := (*row.UserAgent)[:512]
		row.UserAgent = &ua
	}
	return a.repo.Insert(ctx, row)
}

// List returns the current tenant's access log, newest first.
func (a *AccessLog) List(ctx context.Context, filter AccessLogFilter, limit, offset int) ([]*AccessLogEntry, int, error) {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, 0, apperr.Invalid("to must be after from")
	}
	filter.TenantID = db.TenantFromContext(ctx)
	if filter.TenantID == "" {
		filter.TenantID = a.defaultTenant
	}
	return a.repo.List(ctx, filter, limit, offset)
}

var _ middleware.AuditRecorder = (*AccessLog)(nil)
