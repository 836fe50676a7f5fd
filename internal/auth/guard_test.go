package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"conversa/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	state   models.AuthState
	session *models.Session
	tokens  []string
}

func (f *fakeReader) Resolve(_ context.Context, token string) (models.AuthState, *models.Session) {
	f.tokens = append(f.tokens, token)
	return f.state, f.session
}

func TestDecide(t *testing.T) {
	user := &models.Identity{ID: "u1", Email: "ana@example.com"}

	tests := []struct {
		name     string
		state    models.AuthState
		from     string
		outcome  Outcome
		location string
	}{
		{"Loading without user", models.AuthState{Loading: true}, "/app", OutcomeLoading, ""},
		{"Loading with user", models.AuthState{Loading: true, User: user}, "/app", OutcomeLoading, ""},
		{"Anonymous", models.AuthState{}, "/app/threads/7", OutcomeRedirect, "/login?from=%2Fapp%2Fthreads%2F7"},
		{"Anonymous with query", models.AuthState{}, "/app?tab=unread&x=1", OutcomeRedirect, "/login?from=%2Fapp%3Ftab%3Dunread%26x%3D1"},
		{"Authenticated", models.AuthState{User: user}, "/app", OutcomeAllow, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.state, tt.from)
			require.Equal(t, tt.outcome, d.Outcome, "outcome %s", d.Outcome)
			require.Equal(t, tt.location, d.Location)

			if d.Outcome == OutcomeRedirect {
				u, err := url.Parse(d.Location)
				require.NoError(t, err)
				require.Equal(t, LoginPath, u.Path)
				require.Equal(t, tt.from, u.Query().Get("from"))
			}
		})
	}
}

func TestGuard(t *testing.T) {
	loading := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	var gotSession *models.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession, _ = SessionFromContext(r.Context())
		_, _ = w.Write([]byte("app"))
	})

	t.Run("Loading", func(t *testing.T) {
		reader := &fakeReader{state: models.AuthState{Loading: true, User: &models.Identity{ID: "u1"}}}
		rec := httptest.NewRecorder()
		Guard(reader, loading, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "loading", rec.Body.String())
		require.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("Redirect", func(t *testing.T) {
		reader := &fakeReader{}
		rec := httptest.NewRecorder()
		Guard(reader, loading, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/threads/7?tab=all", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", location.Path)
		require.Equal(t, "/app/threads/7?tab=all", location.Query().Get("from"))
	})

	t.Run("Allow", func(t *testing.T) {
		session := &models.Session{ID: "s1", User: models.Identity{ID: "u1"}}
		reader := &fakeReader{state: models.AuthState{User: &session.User}, session: session}

		req := httptest.NewRequest(http.MethodGet, "/app", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "browser-token"})
		rec := httptest.NewRecorder()
		Guard(reader, loading, next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "app", rec.Body.String())
		require.Empty(t, rec.Header().Get("Location"))
		require.Same(t, session, gotSession)
		require.Equal(t, []string{"browser-token"}, reader.tokens)
	})
}

func TestRequestToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, RequestToken(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie"})
	require.Equal(t, "cookie", RequestToken(req))

	req.Header.Set("Authorization", "Bearer bearer")
	require.Equal(t, "bearer", RequestToken(req))

	req.Header.Set("token", "header")
	require.Equal(t, "header", RequestToken(req))
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	_, ok := SessionFromContext(ctx)
	require.False(t, ok)

	require.Equal(t, ctx, WithSession(ctx, nil))

	s := &models.Session{ID: "s1"}
	got, ok := SessionFromContext(WithSession(ctx, s))
	require.True(t, ok)
	require.Same(t, s, got)
}
