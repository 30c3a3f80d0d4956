package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"profitdash/internal/core"
	"profitdash/internal/log"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the signed-in user set by RequireUser.
func UserFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(contextKey{}).(core.User)
	return u, ok && u.ID != ""
}

// RequireUser lets signed-in requests through with the user in context.
// Browsers navigating to a page are redirected to /login; htmx and API
// callers get 401, htmx with an HX-Redirect so the page follows.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.Authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrSessionExpired) {
				log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
					ErrorContext(r.Context(), "Session lookup failed", log.FieldError, err)
			}
			unauthorized(w, r)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = log.NewContext(ctx, log.FromContext(ctx).WithUser(user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Header.Get("HX-Request") == "true":
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusUnauthorized)
	case wantsJSON(r):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authentication required"}` + "\n"))
	default:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
