package admin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/cache"
	"github.com/emhr/emhr/internal/platform/db"
)

type mockSettingRepo struct {
	values map[string]string
	reads  int
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{values: make(map[string]string)}
}

func (m *mockSettingRepo) Get(_ context.Context, key string) (*Setting, error) {
	m.reads++
	v, ok := m.values[key]
	if !ok {
		return nil, apperr.NotFound("setting " + key)
	}
	return &Setting{Key: key, Value: v}, nil
}

func (m *mockSettingRepo) Upsert(_ context.Context, s *Setting) error {
	m.values[s.Key] = s.Value
	s.UpdatedAt = time.Now()
	return nil
}

func (m *mockSettingRepo) List(_ context.Context) ([]*Setting, error) {
	var out []*Setting
	for k, v := range m.values {
		out = append(out, &Setting{Key: k, Value: v})
	}
	return out, nil
}

func (m *mockSettingRepo) Delete(_ context.Context, key string) error {
	if _, ok := m.values[key]; !ok {
		return apperr.NotFound("setting " + key)
	}
	delete(m.values, key)
	return nil
}

func TestSettings_ReadThroughCache(t *testing.T) {
	repo := newMockSettingRepo()
	repo.values["clinic.timezone"] = "America/Chicago"
	s := NewSettings(repo, cache.New(time.Minute, nil, "", zerolog.Nop()), zerolog.Nop())
	ctx := db.WithTenant(context.Background(), "acme")

	for i := 0; i < 3; i++ {
		v, err := s.Get(ctx, "clinic.timezone")
		require.NoError(t, err)
		assert.Equal(t, "America/Chicago", v)
	}
	assert.Equal(t, 1, repo.reads, "later reads are served from the cache")

	v, err := s.GetOr(ctx, "clinic.missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	_, err = s.Get(ctx, "Bad Key")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSettings_WriteInvalidatesAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := newMockSettingRepo()
	repo.values["reminders.lead_hours"] = "24"
	// Two API servers sharing one database and one Redis.
	a := NewSettings(repo, cache.New(time.Minute, rdb, "emhr:", zerolog.Nop()), zerolog.Nop())
	b := NewSettings(repo, cache.New(time.Minute, rdb, "emhr:", zerolog.Nop()), zerolog.Nop())
	ctx := db.WithTenant(context.Background(), "acme")

	v, err := a.Get(ctx, "reminders.lead_hours")
	require.NoError(t, err)
	assert.Equal(t, "24", v)
	assert.True(t, mr.Exists("emhr:acme:reminders.lead_hours"))

	_, err = b.Set(ctx, "reminders.lead_hours", "48")
	require.NoError(t, err)
	assert.False(t, mr.Exists("emhr:acme:reminders.lead_hours"), "write drops the shared entry")

	// a still holds its local copy until it expires; a fresh instance reads the new value.
	c := NewSettings(repo, cache.New(time.Minute, rdb, "emhr:", zerolog.Nop()), zerolog.Nop())
	v, err = c.Get(ctx, "reminders.lead_hours")
	require.NoError(t, err)
	assert.Equal(t, "48", v)

	v, err = b.Get(ctx, "reminders.lead_hours")
	require.NoError(t, err)
	assert.Equal(t, "48", v)
}

func TestSettings_TenantScopedKeys(t *testing.T) {
	repo := newMockSettingRepo()
	repo.values["clinic.name"] = "Acme"
	s := NewSettings(repo, cache.New(time.Minute, nil, "", zerolog.Nop()), zerolog.Nop())

	_, err := s.Get(db.WithTenant(context.Background(), "acme"), "clinic.name")
	require.NoError(t, err)
	_, err = s.Get(db.WithTenant(context.Background(), "globex"), "clinic.name")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reads, "each tenant has its own cache entry")
}

func TestSettings_SetAndDelete(t *testing.T) {
	repo := newMockSettingRepo()
	s := NewSettings(repo, cache.New(time.Minute, nil, "", zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := s.Set(ctx, "notes.autosave_seconds", "30")
	require.NoError(t, err)
	v, err := s.Get(ctx, "notes.autosave_seconds")
	require.NoError(t, err)
	assert.Equal(t, "30", v)

	require.NoError(t, s.Delete(ctx, "notes.autosave_seconds"))
	_, err = s.Get(ctx, "notes.autosave_seconds")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Set(ctx, "big", string(make([]byte, maxSettingValue+1)))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, s.Delete(ctx, "absent"), apperr.ErrNotFound)
}
