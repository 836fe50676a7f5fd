package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"conversa/internal/content"
	"conversa/internal/models"
)

type SessionAdmin interface {
	Sessions() ([]models.Session, error)
	RevokeUser(userID string) (int, error)
}

// Disconnector drops the live connections of a user.
type Disconnector interface {
	DisconnectUser(userID string)
}

type AdminHandler struct {
	sessions SessionAdmin
	hub      Disconnector
}

func NewAdminHandler(sessions SessionAdmin, hub Disconnector) *AdminHandler {
	return &AdminHandler{sessions: sessions, hub: hub}
}

type RevokeResponse struct {
	UserID  string `json:"userId"`
	Revoked int    `json:"revoked"`
	Message string `json:"message"`
}

func (h *AdminHandler) ListSessionsHandler(r *http.Request) (any, error) {
	return h.sessions.Sessions()
}

// RevokeSessionsHandler signs a user out everywhere: ?user=<id>.
func (h *AdminHandler) RevokeSessionsHandler(r *http.Request) (any, error) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		return nil, invalidRequest(map[string]string{"user": "required"})
	}
	if err := content.ValidateID(userID); err != nil {
		return nil, invalidRequest(map[string]string{"user": err.Error()})
	}

	n, err := h.sessions.RevokeUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if n == 0 {
		return nil, models.NewAppError(models.CodeNotFound, "no sessions for user", nil)
	}
	h.hub.DisconnectUser(userID)

	slog.Info("sessions revoked", "user_id", userID, "count", n)
	return RevokeResponse{
		UserID:  userID,
		Revoked: n,
		Message: fmt.Sprintf("%d session(s) of user %s revoked", n, userID),
	}, nil
}
