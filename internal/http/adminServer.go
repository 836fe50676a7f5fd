package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"conversa/internal/api"

	"github.com/go-chi/chi/v5/middleware"
)

type AdminServerConfig struct {
	Addr     string
	User     string
	Password string
}

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(cfg AdminServerConfig, sessions api.SessionAdmin, hub api.Disconnector) *AdminServer {
	adminHandler := api.NewAdminHandler(sessions, hub)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/sessions", api.Wrap(adminHandler.ListSessionsHandler))
	mux.HandleFunc("DELETE /admin/sessions", api.Wrap(adminHandler.RevokeSessionsHandler))

	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: middleware.Recoverer(api.BasicAuth(cfg.User, cfg.Password, mux)),
		},
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
