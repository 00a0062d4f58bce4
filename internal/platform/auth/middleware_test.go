package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/internal/platform/db"
)

func newTestAuthenticator() *Authenticator {
	return &Authenticator{
		Tokens:   NewTokenIssuer(testSigningKey, time.Hour),
		Sessions: NewSessionManager([]byte("session-secret"), 3600, false),
		Revoked:  NewRevocationList(),
		Skipper:  AuthSkipper,
		Logger:   zerolog.Nop(),
	}
}

func runAuth(t *testing.T, a *Authenticator, req *http.Request) (echo.Context, *Principal, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Principal
	h := a.Middleware()(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})
	return c, got, h(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	_, _, err := runAuth(t, newTestAuthenticator(), httptest.NewRequest(http.MethodGet, "/", nil))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestAuthenticate_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			_, _, err := runAuth(t, newTestAuthenticator(), req)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestAuthenticate_BearerToken(t *testing.T) {
	a := newTestAuthenticator()
	tok, _, err := a.Tokens.Issue(&Principal{UserID: 9, Username: "biller", Role: RoleBiller, TenantID: "acme"})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c, p, err := runAuth(t, a, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.UserID != 9 || p.Role != RoleBiller {
		t.Fatalf("unexpected principal %+v", p)
	}
	if c.Get(db.AuthTenantKey) != "acme" {
		t.Errorf("expected auth tenant acme, got %v", c.Get(db.AuthTenantKey))
	}
}

func TestAuthenticate_RevokedToken(t *testing.T) {
	a := newTestAuthenticator()
	tok, _, _ := a.Tokens.Issue(&Principal{UserID: 9, Role: RoleBiller})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	a.RevokeBearer(echo.New().NewContext(req, httptest.NewRecorder()))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, _, err := runAuth(t, a, req)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestAuthenticate_UnknownRole(t *testing.T) {
	a := newTestAuthenticator()
	tok, _, _ := a.Tokens.Issue(&Principal{UserID: 3, Role: "root"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, _, err := runAuth(t, a, req)
	expectStatus(t, err, http.StatusForbidden)
}

func TestAuthenticate_SessionCookie(t *testing.T) {
	a := newTestAuthenticator()
	ck := saveSession(t, a.Sessions, &Principal{UserID: 4, Username: "intern", Role: RoleIntern, TenantID: "default"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	_, p, err := runAuth(t, a, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.UserID != 4 || p.Role != RoleIntern {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestAuthenticate_DevPrincipal(t *testing.T) {
	a := newTestAuthenticator()
	a.DevPrincipal = DevAdmin("default")

	_, p, err := runAuth(t, a, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsAdmin() {
		t.Errorf("expected dev admin, got %+v", p)
	}
}

func TestAuthenticate_SkipsPublicPaths(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/health")

	called := false
	h := newTestAuthenticator().Middleware()(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to run for public path")
	}
	if !IsPublicPath("/metrics") || IsPublicPath("/api/v1/clients") {
		t.Error("unexpected public path classification")
	}
}

type userRow struct {
	role   string
	active bool
}

// fakeUsers is a UserLookup over an in-memory user table.
type fakeUsers map[int64]*userRow

func (f fakeUsers) lookup(_ context.Context, id int64) (string, bool, error) {
	u, ok := f[id]
	if !ok {
		return "", false, apperr.NotFound("user")
	}
	return u.role, u.active, nil
}

func runAuthRefresh(t *testing.T, a *Authenticator, req *http.Request) (*Principal, error) {
	t.Helper()
	c := echo.New().NewContext(req, httptest.NewRecorder())

	var got *Principal
	h := a.Middleware()(a.Refresh()(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}))
	return got, h(c)
}

func TestRefresh_DeactivatedUserSessionRejected(t *testing.T) {
	users := fakeUsers{4: {role: RoleClinician, active: true}}
	a := newTestAuthenticator()
	a.Users = users.lookup
	ck := saveSession(t, a.Sessions, &Principal{UserID: 4, Username: "clin", Role: RoleClinician, TenantID: "default"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	if _, err := runAuthRefresh(t, a, req); err != nil {
		t.Fatalf("active user rejected: %v", err)
	}

	users[4].active = false
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	_, err := runAuthRefresh(t, a, req)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestRefresh_DeletedUserTokenRejected(t *testing.T) {
	a := newTestAuthenticator()
	a.Users = fakeUsers{}.lookup
	tok, _, _ := a.Tokens.Issue(&Principal{UserID: 12, Role: RoleBiller, TenantID: "default"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, err := runAuthRefresh(t, a, req)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestRefresh_UsesStoredRole(t *testing.T) {
	users := fakeUsers{4: {role: RoleAdmin, active: true}}
	a := newTestAuthenticator()
	a.Users = users.lookup
	ck := saveSession(t, a.Sessions, &Principal{UserID: 4, Username: "clin", Role: RoleAdmin, TenantID: "default"})

	users[4].role = RoleFrontDesk
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	p, err := runAuthRefresh(t, a, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != RoleFrontDesk {
		t.Errorf("expected demoted role %s, got %s", RoleFrontDesk, p.Role)
	}
	if p.IsAdmin() {
		t.Error("demoted user still holds admin")
	}
}

func TestRefresh_LookupFailure(t *testing.T) {
	a := newTestAuthenticator()
	a.Users = func(context.Context, int64) (string, bool, error) { return "", false, errors.New("connection reset") }
	tok, _, _ := a.Tokens.Issue(&Principal{UserID: 4, Role: RoleClinician})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, err := runAuthRefresh(t, a, req)
	expectStatus(t, err, http.StatusServiceUnavailable)
}

func TestRefresh_SkipsDevPrincipal(t *testing.T) {
	a := newTestAuthenticator()
	a.DevPrincipal = DevAdmin("default")
	a.Users = fakeUsers{}.lookup

	p, err := runAuthRefresh(t, a, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsAdmin() {
		t.Errorf("expected dev admin, got %+v", p)
	}
}
