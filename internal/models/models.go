package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Identity is the authenticated user as reported by the backend.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// AuthState is what every consumer sees of the current authentication.
// Only the auth provider produces it.
type AuthState struct {
	User    *Identity `json:"user"`
	Loading bool      `json:"loading"`
}

// Authenticated reports whether the state carries a user and is settled.
func (s AuthState) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// Session is the server-side half of a signed in browser.
// Backend tokens never leave the server.
type Session struct {
	ID           string    `json:"id"`
	User         Identity  `json:"user"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the access token is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// UnreadCount is the number of unread messages in one thread of a tenant.
type UnreadCount struct {
	ThreadID    string `json:"thread_id"`
	UnreadCount int    `json:"unread_count"`
}

// Validate checks a row decoded from the backend.
func (u UnreadCount) Validate() error {
	if u.ThreadID == "" {
		return errors.New("thread_id is empty")
	}
	if u.UnreadCount < 0 {
		return errors.New("unread_count is negative")
	}
	return nil
}

// InviteDelivery is the outcome of an invite email request.
type InviteDelivery struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// ClientMessage represents a frame sent by the browser over the live socket.
type ClientMessage struct {
	Type     ClientMessageType `json:"type"`
	TenantID string            `json:"tenantId"`
}

// ServerMessage represents a frame pushed to the browser.
type ServerMessage struct {
	Type     ServerMessageType `json:"type"`
	TenantID string            `json:"tenantId,omitempty"`
	Counts   []UnreadCount     `json:"counts,omitempty"`
	Error    *ErrorBody        `json:"error,omitempty"`
}

type ClientMessageType string

const (
	ClientMessageTypeSubscribe ClientMessageType = "subscribe"
	ClientMessageTypeRefresh   ClientMessageType = "refresh"
)

type ServerMessageType string

const (
	ServerMessageTypeUnread ServerMessageType = "unread"
	ServerMessageTypeError  ServerMessageType = "error"
)
