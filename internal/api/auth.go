package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/packhost/repod/internal/apierr"
)

type contextKey int

const tenantIDKey contextKey = iota

// authenticate resolves "Authorization: Bearer <token>" against the catalog
// and attaches the resolved tenant_id to the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, apierr.New(apierr.Unauthorized, "missing bearer token"))
			return
		}

		tenant, err := s.Catalog.AuthenticateToken(r.Context(), s.TokenSecret, token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenant.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(r *http.Request) string {
	id, _ := r.Context().Value(tenantIDKey).(string)
	return id
}
