package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		roles []string
		perm  Permission
		want  bool
	}{
		{[]string{RoleAdmin}, PermWritePresets, true},
		{[]string{RoleAdmin}, PermUseSessions, true},
		{[]string{RoleAnonymizer}, PermUseSessions, true},
		{[]string{RoleAnonymizer}, PermReadPresets, true},
		{[]string{RoleAnonymizer}, PermWritePresets, false},
		{[]string{"viewer", RoleAnonymizer}, PermReadPresets, true},
		{[]string{"viewer"}, PermReadPresets, false},
		{nil, PermUseSessions, false},
	}
	for _, tt := range tests {
		if got := Allowed(tt.roles, tt.perm); got != tt.want {
			t.Errorf("Allowed(%v, %s) = %v, want %v", tt.roles, tt.perm, got, tt.want)
		}
	}
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		perm  Permission
		code  int
	}{
		{"anonymizer uses sessions", []string{RoleAnonymizer}, PermUseSessions, http.StatusOK},
		{"anonymizer cannot write presets", []string{RoleAnonymizer}, PermWritePresets, http.StatusForbidden},
		{"admin writes presets", []string{RoleAdmin}, PermWritePresets, http.StatusOK},
		{"no roles", nil, PermReadPresets, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := Require(tt.perm)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})(c)

			if tt.code == http.StatusOK {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, httpErr.Code)
			}
			if msg, _ := httpErr.Message.(string); msg != "missing permission "+string(tt.perm) {
				t.Errorf("unexpected message %q", msg)
			}
		})
	}
}

func TestValidateRoles(t *testing.T) {
	if err := ValidateRoles([]string{RoleAdmin, RoleAnonymizer}); err != nil {
		t.Errorf("known roles: %v", err)
	}
	if err := ValidateRoles([]string{"auditor"}); err == nil {
		t.Error("expected an error for an unknown role")
	}
	if got := KnownRoles(); len(got) != 2 || got[0] != RoleAdmin || got[1] != RoleAnonymizer {
		t.Errorf("KnownRoles() = %v", got)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		uid := UserIDFromContext(c.Request().Context())
		roles := RolesFromContext(c.Request().Context())
		if uid != "dev-user" {
			t.Errorf("expected dev-user, got %s", uid)
		}
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected [admin] roles, got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := DevAuthMiddleware()
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	uid := UserIDFromContext(ctx)
	if uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}

	empty := UserIDFromContext(context.Background())
	if empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
