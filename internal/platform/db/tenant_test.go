package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTenantContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID_FromHeader(t *testing.T) {
	c := newTenantContext("/")
	c.Request().Header.Set("X-Tenant-ID", "clinic_north")

	if tid := extractTenantID(c, "default"); tid != "clinic_north" {
		t.Errorf("expected clinic_north, got %s", tid)
	}
}

func TestExtractTenantID_FromQuery(t *testing.T) {
	c := newTenantContext("/?tenant_id=clinic_south")

	if tid := extractTenantID(c, "default"); tid != "clinic_south" {
		t.Errorf("expected clinic_south, got %s", tid)
	}
}

func TestExtractTenantID_PrincipalWins(t *testing.T) {
	c := newTenantContext("/?tenant_id=query")
	c.Request().Header.Set("X-Tenant-ID", "header")
	c.Set(AuthTenantKey, "session_tenant")

	if tid := extractTenantID(c, "default"); tid != "session_tenant" {
		t.Errorf("expected session_tenant, got %s", tid)
	}
}

func TestExtractTenantID_HeaderBeforeQuery(t *testing.T) {
	c := newTenantContext("/?tenant_id=query_tenant")
	c.Request().Header.Set("X-Tenant-ID", "header_tenant")
	c.Set(AuthTenantKey, "")

	if tid := extractTenantID(c, "default"); tid != "header_tenant" {
		t.Errorf("expected header_tenant, got %s", tid)
	}
}

func TestExtractTenantID_Default(t *testing.T) {
	if tid := extractTenantID(newTenantContext("/"), "default"); tid != "default" {
		t.Errorf("expected default, got %s", tid)
	}
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"tenant_1", true},
		{"a", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"'; DROP TABLE", false},
		{"", false},
		{"this_identifier_is_far_too_long_for_a_schema_name_x", false},
	}

	for _, tt := range tests {
		if got := ValidTenantID(tt.input); got != tt.valid {
			t.Errorf("ValidTenantID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("north"); got != "tenant_north" {
		t.Errorf("expected tenant_north, got %s", got)
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant from empty context")
	}

	ctx = WithTenant(ctx, "east")
	if TenantFromContext(ctx) != "east" {
		t.Errorf("expected east, got %s", TenantFromContext(ctx))
	}

	wrong := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	if ConnFromContext(wrong) != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"tenant-with-dash", "tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, nil); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}
