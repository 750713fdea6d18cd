package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type ctxKey string

const (
	ctxKeyCustomerID ctxKey = "customer_id"
	ctxKeyBusinessID ctxKey = "business_id"
	ctxKeyRole       ctxKey = "role"
)

const (
	RoleCustomer = "customer"
	RoleBusiness = "business"
)

// authClaims is the access token payload. Customers carry their account id in
// the subject; business staff additionally carry the business they act for.
type authClaims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	BusinessID int64  `json:"business_id,omitempty"`
}

// AuthMiddleware validates the bearer token and stores identity in the
// request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenStr == "" {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			var claims authClaims
			_, err := jwt.ParseWithClaims(tokenStr, &claims,
				func(t *jwt.Token) (interface{}, error) { return secret, nil },
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyCustomerID, claims.Subject)
			ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)
			if claims.Role == RoleBusiness {
				ctx = context.WithValue(ctx, ctxKeyBusinessID, claims.BusinessID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose token carries the wrong role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if getRole(r.Context()) != role {
				respondError(w, http.StatusForbidden, "FORBIDDEN", "wrong account type for this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ScanRateLimit throttles the redemption endpoint so a stolen staff token
// cannot brute-force pickup codes.
func ScanRateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many scan attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getCustomerID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyCustomerID).(string); ok {
		return id
	}
	return ""
}

func getBusinessID(ctx context.Context) int64 {
	if id, ok := ctx.Value(ctxKeyBusinessID).(int64); ok {
		return id
	}
	return 0
}

func getRole(ctx context.Context) string {
	if role, ok := ctx.Value(ctxKeyRole).(string); ok {
		return role
	}
	return ""
}
