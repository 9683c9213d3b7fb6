package auth

import (
	"fmt"
	"net/http"
	"slices"
	"sort"

	"github.com/labstack/echo/v4"
)

// Roles understood by the HTTP API.
const (
	RoleAdmin      = "admin"
	RoleAnonymizer = "anonymizer"
)

// Permission names one kind of API call.
type Permission string

const (
	PermUseSessions  Permission = "sessions:use"
	PermReadPresets  Permission = "presets:read"
	PermWritePresets Permission = "presets:write"
)

// grants lists the permissions of each role.
var grants = map[string][]Permission{
	RoleAdmin:      {PermUseSessions, PermReadPresets, PermWritePresets},
	RoleAnonymizer: {PermUseSessions, PermReadPresets},
}

// KnownRoles returns the role names tokens may carry, sorted.
func KnownRoles() []string {
	out := make([]string, 0, len(grants))
	for r := range grants {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ValidateRoles rejects role names no permission is granted to.
func ValidateRoles(roles []string) error {
	for _, r := range roles {
		if _, ok := grants[r]; !ok {
			return fmt.Errorf("unknown role %q (known: %v)", r, KnownRoles())
		}
	}
	return nil
}

// Allowed reports whether any of roles grants p.
func Allowed(roles []string, p Permission) bool {
	for _, r := range roles {
		if slices.Contains(grants[r], p) {
			return true
		}
	}
	return false
}

// Require returns middleware that rejects callers whose roles do not grant p.
func Require(p Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !Allowed(RolesFromContext(c.Request().Context()), p) {
				return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("missing permission %s", p))
			}
			return next(c)
		}
	}
}
