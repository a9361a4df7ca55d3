package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestValidTenantID(t *testing.T) {
	valid := []string{"default", "clinic_42", "Northside01"}
	for _, id := range valid {
		if !ValidTenantID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}

	invalid := []string{"", "a-b", "x.y", "tenant;drop", "a b"}
	for _, id := range invalid {
		if ValidTenantID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestSchemaFor(t *testing.T) {
	if got := SchemaFor("clinic_42"); got != "tenant_clinic_42" {
		t.Errorf("unexpected schema name: %s", got)
	}
}

func TestExtractTenantID(t *testing.T) {
	e := echo.New()

	// Default when nothing is set
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := extractTenantID(c, "default"); got != "default" {
		t.Errorf("expected default tenant, got %s", got)
	}

	// Header wins over default
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "clinic_a")
	c = e.NewContext(req, httptest.NewRecorder())
	if got := extractTenantID(c, "default"); got != "clinic_a" {
		t.Errorf("expected header tenant, got %s", got)
	}

	// JWT claim wins over header
	c.Set("jwt_tenant_id", "clinic_b")
	if got := extractTenantID(c, "default"); got != "clinic_b" {
		t.Errorf("expected jwt tenant, got %s", got)
	}
}

func TestTenantFromContext_Empty(t *testing.T) {
	if got := TenantFromContext(context.Background()); got != "" {
		t.Errorf("expected empty tenant, got %s", got)
	}
}
