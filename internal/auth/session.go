package auth

import (
	"context"
	"net/http"
	"strings"

	"conversa/internal/models"
)

// CookieName is the cookie carrying the browser's session token.
const CookieName = "token"

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by WithSession.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*models.Session)
	return s, ok && s != nil
}

// RequestToken finds the session token of a request: the token header,
// a bearer Authorization header or the session cookie, in that order.
func RequestToken(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
