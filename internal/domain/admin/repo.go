package admin

import "context"

type FacilityRepository interface {
	Create(ctx context.Context, f *Facility) error
	GetByID(ctx context.Context, id int64) (*Facility, error)
	Update(ctx context.Context, f *Facility) error
	List(ctx context.Context, activeOnly bool) ([]*Facility, error)
}

type ListOptionRepository interface {
	// Upsert inserts or replaces the option identified by (list_id, option_id).
	Upsert(ctx context.Context, o *ListOption) error
	List(ctx context.Context, listID string, activeOnly bool) ([]*ListOption, error)
	Lists(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, listID, optionID string) error
}

type SettingRepository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	Upsert(ctx context.Context, s *Setting) error
	List(ctx context.Context) ([]*Setting, error)
	Delete(ctx context.Context, key string) error
}

type AccessLogRepository interface {
	Insert(ctx context.Context, e *AccessLogEntry) error
	List(ctx context.Context, filter AccessLogFilter, limit, offset int) ([]*AccessLogEntry, int, error)
}
