package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/vigil/internal/models"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
)

type contextKey string

const claimsContextKey contextKey = "admin_claims"

// RequireAdmin accepts the admin token from the admin_auth cookie or an
// Authorization: Bearer header.
func RequireAdmin(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if v := GetCookie(r, AdminCookieName); v != "" {
		return v
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ClaimsFromContext returns the admin claims set by RequireAdmin.
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, ok := ctx.Value(claimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
