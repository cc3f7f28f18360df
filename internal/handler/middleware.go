package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"insights-service/internal/token"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// ClaimsFromContext returns the authenticated identity injected by the
// gate, or nil when the request is anonymous.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}

// Gate rejects any request without a valid bearer token. The three
// failure modes get distinct messages so clients know whether to
// attach, refresh, or re-obtain a token.
func Gate(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorResponse(errors.New("missing bearer token"), "Authorization token required"))
				return
			}

			claims, err := issuer.Validate(tokenString)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					writeJSON(w, http.StatusUnauthorized, errorResponse(err, "Token expired, please login again"))
					return
				}
				writeJSON(w, http.StatusUnauthorized, errorResponse(err, "Invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalGate injects the identity when a valid token is present and
// proceeds anonymously on any failure. It never rejects.
func OptionalGate(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := bearerToken(r); ok {
				if claims, err := issuer.Validate(tokenString); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
