package api

import (
	"context"
	"net/http"
	"strings"

	"elasticroute/internal/auth"
)

type ctxKeyPrincipal struct{}

// authenticate requires a valid bearer token on /v1 routes when the
// verifier is enabled. WebSocket clients may pass it as ?access_token=.
func authenticate(v *auth.Verifier, next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		tok := bearer(r)
		if tok == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
			return
		}
		p, err := v.Verify(r.Context(), tok)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		r2 := r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal{}, p))
		next.ServeHTTP(w, r2)
		// observe labels by the pattern the mux matched on the copy
		r.Pattern = r2.Pattern
	})
}

func bearer(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if r.URL.Path == "/v1/ws" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// requireAdmin guards operator endpoints. Without authentication every
// caller is treated as admin.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth.Enabled() {
			p, _ := r.Context().Value(ctxKeyPrincipal{}).(auth.Principal)
			if !p.IsAdmin() {
				writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
				return
			}
		}
		next(w, r)
	}
}
