package rbac

import (
	"log/slog"
	"net/http"
	"strings"
)

// Checker answers permission questions for the current session.
type Checker interface {
	HasAnyPermission(perms ...string) bool
	HasAllPermissions(perms ...string) bool
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Checker Checker
	Logger  *slog.Logger
}

// RequireAny ensures the current session has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if m.Checker != nil && m.Checker.HasAnyPermission(normalized...) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, normalized)
		})
	}
}

// RequireAll ensures the current session has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if m.Checker != nil && m.Checker.HasAllPermissions(normalized...) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, normalized)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, perms []string) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied", slog.String("path", r.URL.Path), slog.Any("required", perms))
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// normalizePermissions trims and deduplicates perms, keeping first-seen order.
func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
