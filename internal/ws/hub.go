package ws

import (
	"context"
	"log/slog"
	"sync"

	"conversa/internal/api"
	"conversa/internal/auth"
	"conversa/internal/content"
	"conversa/internal/models"

	"github.com/google/uuid"
)

// UnreadSource fetches the unread counts of a tenant for the session in ctx.
type UnreadSource interface {
	GetUnreadCounts(ctx context.Context, tenantID string) ([]models.UnreadCount, error)
}

type client struct {
	userID  string
	token   string
	tenants map[string]struct{}
	ch      chan models.ServerMessage
}

// Hub tracks live connections and pushes unread counts to them.
// Connections hold the browser token, not a session: every fetch resolves
// it again so refreshed or revoked sessions are honoured.
type Hub struct {
	reader auth.StateReader
	source UnreadSource

	// connection id -> client
	clients map[string]*client
	// user id -> connection ids
	byUser map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewHub(reader auth.StateReader, source UnreadSource) *Hub {
	return &Hub{
		reader:  reader,
		source:  source,
		clients: make(map[string]*client),
		byUser:  make(map[string]map[string]struct{}),
	}
}

// Join registers a connection of userID and returns its id and the channel
// the hub pushes to. The channel is closed by Leave or DisconnectUser.
func (h *Hub) Join(userID, token string) (string, chan models.ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	c := &client{
		userID:  userID,
		token:   token,
		tenants: make(map[string]struct{}),
		ch:      make(chan models.ServerMessage, 16),
	}
	h.clients[id] = c
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]struct{})
	}
	h.byUser[userID][id] = struct{}{}
	return id, c.ch
}

func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(connID)
}

// DisconnectUser closes every connection of a user.
func (h *Hub) DisconnectUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.byUser[userID] {
		h.remove(id)
	}
}

func (h *Hub) remove(connID string) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	close(c.ch)
	delete(h.clients, connID)
	delete(h.byUser[c.userID], connID)
	if len(h.byUser[c.userID]) == 0 {
		delete(h.byUser, c.userID)
	}
}

// Dispatch handles a frame from a connection: subscribe adds the tenant to
// the connection and both subscribe and refresh answer with current counts.
func (h *Hub) Dispatch(ctx context.Context, connID string, msg models.ClientMessage) {
	switch msg.Type {
	case models.ClientMessageTypeSubscribe, models.ClientMessageTypeRefresh:
	default:
		h.send(connID, errorMessage(msg.TenantID,
			models.NewAppError(models.CodeInvalidRequest, "unknown message type", nil)))
		return
	}
	if err := content.ValidateID(msg.TenantID); err != nil {
		h.send(connID, errorMessage(msg.TenantID,
			models.NewAppError(models.CodeInvalidRequest, "invalid tenant id", nil)))
		return
	}

	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok && msg.Type == models.ClientMessageTypeSubscribe {
		c.tenants[msg.TenantID] = struct{}{}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.refresh(ctx, connID, c.token, msg.TenantID)
}

// Publish refreshes the counts of tenantID on every connection of userID
// subscribed to it.
func (h *Hub) Publish(ctx context.Context, userID, tenantID string) {
	type target struct{ id, token string }

	h.mu.RLock()
	var targets []target
	for id := range h.byUser[userID] {
		c := h.clients[id]
		if _, ok := c.tenants[tenantID]; ok {
			targets = append(targets, target{id: id, token: c.token})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.refresh(ctx, t.id, t.token, tenantID)
	}
}

func (h *Hub) refresh(ctx context.Context, connID, token, tenantID string) {
	state, session := h.reader.Resolve(ctx, token)
	if !state.Authenticated() {
		h.send(connID, errorMessage(tenantID, models.ErrNotAuthenticated))
		return
	}

	counts, err := h.source.GetUnreadCounts(auth.WithSession(ctx, session), tenantID)
	if err != nil {
		slog.Warn("failed to fetch unread counts", "tenant_id", tenantID, "user_id", session.User.ID, "error", err)
		h.send(connID, errorMessage(tenantID, err))
		return
	}
	h.send(connID, models.ServerMessage{
		Type:     models.ServerMessageTypeUnread,
		TenantID: tenantID,
		Counts:   counts,
	})
}

func (h *Hub) send(connID string, msg models.ServerMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case c.ch <- msg:
	default:
		slog.Warn("dropping live message, connection is slow", "conn_id", connID)
	}
}

func errorMessage(tenantID string, err error) models.ServerMessage {
	_, body := api.Describe(err)
	return models.ServerMessage{
		Type:     models.ServerMessageTypeError,
		TenantID: tenantID,
		Error:    &body,
	}
}
