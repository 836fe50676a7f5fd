package ws

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"conversa/internal/api"
	"conversa/internal/auth"
	"conversa/internal/models"

	"github.com/gorilla/websocket"
)

type Server struct {
	reader   auth.StateReader
	hub      *Hub
	upgrader *websocket.Upgrader
}

// NewServer accepts upgrades from the page's own origin and from allowedOrigins.
func NewServer(reader auth.StateReader, hub *Hub, allowedOrigins []string) *Server {
	return &Server{
		reader: reader,
		hub:    hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Host == r.Host {
					return true
				}
				for _, o := range allowedOrigins {
					if o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := auth.RequestToken(r)
	state, session := s.reader.Resolve(r.Context(), token)
	switch {
	case state.Loading:
		api.WriteError(w, r, models.NewAppError(models.CodeLoading, "sessions are being restored", nil))
		return
	case !state.Authenticated():
		api.WriteError(w, r, models.ErrNotAuthenticated)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	c := NewConnection(s.hub, conn, session.User.ID, token)
	if err := c.Handle(r.Context()); err != nil &&
		!errors.Is(err, ErrDisconnected) &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("websocket connection of %s ended: %v", session.User.ID, err)
	}
}
