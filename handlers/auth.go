package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/satheeshds/invoicedesk/ingest"
)

// AdminRole bypasses every permission check.
const AdminRole = "admin"

// Claims are the JWT claims issued by the user service. Permissions maps a
// feature to the actions the role may perform on it.
type Claims struct {
	jwt.RegisteredClaims
	Role        string                     `json:"role"`
	Permissions map[string]map[string]bool `json:"permissions"`
}

// Can reports whether the claims allow action on feature.
func (c *Claims) Can(feature, action string) bool {
	if c.Role == AdminRole {
		return true
	}
	return c.Permissions[feature][action]
}

type claimsKey struct{}

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// actorFrom returns the verified caller of r.
func actorFrom(r *http.Request) ingest.Actor {
	c := claimsFrom(r.Context())
	if c == nil {
		return ingest.Actor{}
	}
	return ingest.Actor{UserID: c.Subject, Role: c.Role}
}

// ParseToken validates an HS256 token signed with secret.
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token subject is required")
	}
	return claims, nil
}

// JWTAuth is middleware that requires a bearer token signed with secret.
// With an empty secret every request runs as an anonymous admin.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		slog.Warn("JWT_SECRET not set, API is unauthenticated")
		anonymous := &Claims{Role: AdminRole}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), anonymous)))
			})
		}
	}

	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="invoicedesk"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims, err := ParseToken(key, tokenStr)
			if err != nil {
				slog.Debug("rejected token", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission rejects callers whose role lacks action on feature.
func RequirePermission(feature, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := claimsFrom(r.Context())
			if c == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !c.Can(feature, action) {
				writeError(w, http.StatusForbidden, "forbidden: access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
