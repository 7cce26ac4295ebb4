package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "session"

// TokenValidator is what we need from the account service.
// The interface keeps this package decoupled from it.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, string, error)
	// Returns accountID, username, error
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle authenticates the request from the session cookie or a bearer
// header and injects the identity into the request context. Anonymous
// browser requests are redirected to the login page.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if c, err := r.Cookie(SessionCookie); err == nil {
			tokenString = c.Value
		}

		// Fallback: Authorization header
		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		accountID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, accountID)
		ctx = context.WithValue(ctx, UsernameKey, username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity is the authenticated requester carried in the context.
type Identity struct {
	ID       string
	Username string
}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(UserKey).(string)
	name, ok2 := ctx.Value(UsernameKey).(string)
	if !ok || !ok2 {
		return Identity{}, false
	}
	return Identity{ID: id, Username: name}, true
}
