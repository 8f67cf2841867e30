package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for caller data
type contextKey string

const subjectContextKey contextKey = "subject"

// withAuth requires a valid HS256 token when a JWT secret is configured.
// Browsers cannot set headers on a WebSocket upgrade, so the token may also
// arrive in the token query parameter.
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.JWTSecret == "" {
			next.ServeHTTP(w, req)
			return
		}

		tokenString, ok := bearerToken(req)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}

		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return []byte(r.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			r.logger.Printf("auth: rejected token: %v", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		ctx := context.WithValue(req.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>" or,
// failing that, the token query parameter.
func bearerToken(req *http.Request) (string, bool) {
	if authHeader := req.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := req.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// authSubject returns the token subject of an authenticated request.
func authSubject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}
