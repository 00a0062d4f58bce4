package admin

import (
	"context"
	"errors"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/cache"
	"github.com/emhr/emhr/internal/platform/db"
)

var settingKeyPattern = regexp.MustCompile(`^[a-z0-9_.]{1,128}$`)

const maxSettingValue = 4096

// Settings reads the settings table through a cache. Writes go to the
// database first and then invalidate the cached entry.
type Settings struct {
	repo   SettingRepository
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewSettings(repo SettingRepository, c *cache.Cache, logger zerolog.Logger) *Settings {
	return &Settings{repo: repo, cache: c, logger: logger}
}

// cacheKey scopes keys by tenant since every tenant has its own table.
func cacheKey(ctx context.Context, key string) string {
	return db.TenantFromContext(ctx) + ":" + key
}

func validKey(key string) error {
	if !settingKeyPattern.MatchString(key) {
		return apperr.Invalid("invalid setting key %q", key)
	}
	return nil
}

// Get returns the value for key.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	ck := cacheKey(ctx, key)
	if v, err := s.cache.Get(ctx, ck); err == nil {
		return v, nil
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, ck, setting.Value); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache setting")
	}
	return setting.Value, nil
}

// GetOr returns the value for key, or def when the key is unset.
func (s *Settings) GetOr(ctx context.Context, key, def string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return def, nil
	}
	return v, err
}

func (s *Settings) Set(ctx context.Context, key, value string) (*Setting, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if len(value) > maxSettingValue {
		return nil, apperr.Invalid("setting value must be at most %d bytes", maxSettingValue)
	}
	setting := &Setting{Key: key, Value: value}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	s.invalidate(ctx, key)
	s.logger.Info().Str("key", key).Msg("setting updated")
	return setting, nil
}

func (s *Settings) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *Settings) List(ctx context.Context) ([]*Setting, error) {
	return s.repo.List(ctx)
}

func (s *Settings) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, cacheKey(ctx, key)); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to invalidate cached setting")
	}
}
