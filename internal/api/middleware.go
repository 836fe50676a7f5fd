package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"conversa/internal/auth"
	"conversa/internal/models"

	"github.com/c-pro/geche"
	"golang.org/x/time/rate"
)

// WithSession resolves the caller's token and puts the session, if any,
// into the request context. It never rejects.
func WithSession(reader auth.StateReader, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, session := reader.Resolve(r.Context(), auth.RequestToken(r))
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

// MaxBodyBytes bounds request bodies on the API server.
const MaxBodyBytes = 64 << 10

// LimitBody caps the request body at maxBytes; reads past it fail with
// *http.MaxBytesError.
func LimitBody(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 503 while sessions are restored and 401 without a session.
func RequireAuth(reader auth.StateReader, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, session := reader.Resolve(r.Context(), auth.RequestToken(r))
		switch {
		case state.Loading:
			WriteError(w, r, models.NewAppError(models.CodeLoading, "sessions are being restored", nil))
			return
		case !state.Authenticated():
			WriteError(w, r, models.ErrNotAuthenticated)
			return
		}
		next(w, r.WithContext(auth.WithSession(r.Context(), session)))
	}
}

// RequireSameOrigin rejects state changing requests whose Origin (or
// Referer) does not match the request host or one of the allowed origins.
func RequireSameOrigin(allowed []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			if ref := r.Header.Get("Referer"); ref != "" {
				if u, err := url.Parse(ref); err == nil {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}
		if origin != "" && !originAllowed(origin, r.Host, allowed) {
			WriteError(w, r, models.NewAppError(models.CodeInvalidRequest, "cross origin request rejected", nil))
			return
		}
		next(w, r)
	}
}

func originAllowed(origin, host string, allowed []string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == host {
		return true
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

// BasicAuth protects the admin API.
func BasicAuth(user, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			WriteError(w, r, models.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Limiter throttles requests per client IP.
type Limiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters geche.Geche[string, *rate.Limiter]
}

// NewLimiter allows burst requests at once and one more every interval.
// Idle clients are forgotten after ten minutes.
func NewLimiter(ctx context.Context, interval time.Duration, burst int) *Limiter {
	return &Limiter{
		limit:    rate.Every(interval),
		burst:    burst,
		limiters: geche.NewMapTTLCache[string, *rate.Limiter](ctx, 10*time.Minute, time.Minute),
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	lim, err := l.limiters.Get(key)
	if err != nil {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Set on every hit keeps active clients from expiring.
	l.limiters.Set(key, lim)
	l.mu.Unlock()
	return lim.Allow()
}

func (l *Limiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			WriteError(w, r, models.NewAppError(models.CodeRateLimited, "too many requests", nil))
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
