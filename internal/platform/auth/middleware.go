package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

// UserLookup returns the current role and active flag of a user in the
// tenant bound to ctx.
type UserLookup func(ctx context.Context, userID int64) (role string, active bool, err error)

const devPrincipalKey = "auth_dev_principal"

// Authenticator resolves the principal of a request from a bearer token or
// the session cookie.
type Authenticator struct {
	Tokens   *TokenIssuer
	Sessions *SessionManager
	Revoked  *RevocationList
	// DevPrincipal is injected for credential-less requests when set.
	DevPrincipal *Principal
	Skipper      func(echo.Context) bool
	// Users re-reads the user row on every request when set.
	Users  UserLookup
	Logger zerolog.Logger
}

// DevAdmin is the principal used for unauthenticated requests in development.
func DevAdmin(tenantID string) *Principal {
	return &Principal{UserID: 1, Username: "dev-admin", Role: RoleAdmin, TenantID: tenantID}
}

// Middleware authenticates every request and stores the principal on the request context.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a.Skipper != nil && a.Skipper(c) {
				return next(c)
			}

			p, dev, err := a.resolve(c)
			if err != nil {
				a.Logger.Debug().Err(err).Str("path", c.Path()).Msg("authentication failed")
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if !ValidRole(p.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "unknown role")
			}

			if p.TenantID != "" {
				c.Set(db.AuthTenantKey, p.TenantID)
			}
			if dev {
				c.Set(devPrincipalKey, true)
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// Refresh checks the authenticated user against the user table of the bound
// tenant. Deactivated or deleted users get 401 and the stored role replaces
// the one carried by the session or token. It must run after tenant resolution.
func (a *Authenticator) Refresh() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if a.Users == nil || p == nil || c.Get(devPrincipalKey) == true {
				return next(c)
			}

			role, active, err := a.Users(c.Request().Context(), p.UserID)
			if errors.Is(err, apperr.ErrNotFound) || (err == nil && !active) {
				a.Logger.Info().Int64("user_id", p.UserID).Str("tenant_id", p.TenantID).Msg("credential of inactive user rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "account is inactive")
			}
			if err != nil {
				a.Logger.Error().Err(err).Int64("user_id", p.UserID).Msg("user lookup failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "user lookup failed")
			}
			if !ValidRole(role) {
				return echo.NewHTTPError(http.StatusForbidden, "unknown role")
			}
			if role != p.Role {
				current := *p
				current.Role = role
				setPrincipal(c, &current)
			}
			return next(c)
		}
	}
}

func setPrincipal(c echo.Context, p *Principal) {
	c.Set("principal", p)
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

func (a *Authenticator) resolve(c echo.Context) (*Principal, bool, error) {
	header := c.Request().Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return nil, false, errors.New("invalid authorization format")
		}
		if a.Tokens == nil {
			return nil, false, ErrInvalidToken
		}
		p, claims, err := a.Tokens.parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, false, err
		}
		if a.Revoked != nil && a.Revoked.IsRevoked(claims.ID) {
			return nil, false, errors.New("token revoked")
		}
		return p, false, nil
	}

	if a.Sessions != nil {
		p, err := a.Sessions.Load(c.Request())
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, ErrNoSession) {
			return nil, false, errors.New("invalid session")
		}
	}

	if a.DevPrincipal != nil {
		dev := *a.DevPrincipal
		return &dev, true, nil
	}
	return nil, false, errors.New("authentication required")
}

// RevokeBearer revokes the bearer token on the request, if any.
func (a *Authenticator) RevokeBearer(c echo.Context) {
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || a.Tokens == nil || a.Revoked == nil {
		return
	}
	_, claims, err := a.Tokens.parse(strings.TrimSpace(parts[1]))
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	a.Revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
}
