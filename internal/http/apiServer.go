package http

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"conversa/internal/api"
	"conversa/internal/ws"
	"conversa/static"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIServerConfig struct {
	Addr        string
	CORSOrigins []string
	SessionTTL  time.Duration
	// SecureCookie marks the session cookie Secure; set when served over https.
	SecureCookie bool
}

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(ctx context.Context, cfg APIServerConfig, provider api.Authenticator, adapters api.Adapters, hub *ws.Hub) *APIServer {
	wsServer := ws.NewServer(provider, hub, cfg.CORSOrigins)
	apiHandlers := api.New(provider, adapters, hub, cfg.SessionTTL, cfg.SecureCookie)
	loginLimiter := api.NewLimiter(ctx, 6*time.Second, 10)
	sameOrigin := func(h http.HandlerFunc) http.HandlerFunc {
		return api.RequireSameOrigin(cfg.CORSOrigins, h)
	}
	requireAuth := func(h api.Handler) http.HandlerFunc {
		return api.RequireAuth(provider, api.Wrap(h))
	}

	mux := http.NewServeMux()

	// Pages, guarded
	mux.Handle("/", NewFileServerHandler(provider, static.Content))

	// API endpoints
	mux.HandleFunc("POST /api/login", sameOrigin(loginLimiter.Middleware(apiHandlers.LoginHandler)))
	mux.HandleFunc("POST /api/logoff", sameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", requireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/tenants/{tenantID}/unread-counts", requireAuth(apiHandlers.UnreadCountsHandler))
	mux.HandleFunc("POST /api/tenants/{tenantID}/threads/{threadID}/read", sameOrigin(requireAuth(apiHandlers.MarkReadHandler)))
	// Invites check the session themselves.
	mux.Handle("POST /api/invites/{inviteID}/send", api.WithSession(provider, sameOrigin(api.Wrap(apiHandlers.SendInviteHandler))))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/live", wsServer.HandleConnections)

	var handler http.Handler = api.LimitBody(api.MaxBodyBytes, mux)
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = middleware.Recoverer(handler)
	handler = middleware.RequestID(handler)

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
