// Package rpc adapts the backend's procedures and functions to typed calls.
// Each call makes exactly one request; failures come back as they are.
package rpc

import (
	"context"
	"fmt"

	"conversa/internal/auth"
	"conversa/internal/content"
	"conversa/internal/models"
)

const (
	UnreadCountsFn   = "get_unread_counts"
	MarkThreadReadFn = "mark_thread_read"
	InviteEmailFn    = "send-invite-email"
)

// Caller is the part of the backend client the adapters use.
type Caller interface {
	RPC(ctx context.Context, accessToken, fn string, params, out any) error
	Invoke(ctx context.Context, accessToken, function string, body, out any) error
}

type Adapters struct {
	backend Caller
}

func New(backend Caller) *Adapters {
	return &Adapters{backend: backend}
}

// GetUnreadCounts returns the unread counts of every thread of a tenant in
// backend order. An absent payload yields an empty slice.
func (a *Adapters) GetUnreadCounts(ctx context.Context, tenantID string) ([]models.UnreadCount, error) {
	if err := validateIDs("tenant", tenantID); err != nil {
		return nil, err
	}

	var counts []models.UnreadCount
	if err := a.backend.RPC(ctx, accessToken(ctx), UnreadCountsFn, map[string]string{
		"p_tenant_id": tenantID,
	}, &counts); err != nil {
		return nil, err
	}

	if counts == nil {
		return []models.UnreadCount{}, nil
	}
	for i, c := range counts {
		if err := c.Validate(); err != nil {
			return nil, models.NewAppError(models.CodeInvalidPayload,
				fmt.Sprintf("%s: row %d: %v", UnreadCountsFn, i, err), nil)
		}
	}
	return counts, nil
}

func (a *Adapters) MarkThreadRead(ctx context.Context, tenantID, threadID string) error {
	if err := validateIDs("tenant", tenantID, "thread", threadID); err != nil {
		return err
	}
	return a.backend.RPC(ctx, accessToken(ctx), MarkThreadReadFn, map[string]string{
		"p_tenant_id": tenantID,
		"p_thread_id": threadID,
	}, nil)
}

// SendInviteEmail asks the backend to (re)send an invite. It needs a session
// in ctx; without one it reports the delivery as not sent together with
// ErrNotAuthenticated and makes no request.
func (a *Adapters) SendInviteEmail(ctx context.Context, inviteID string) (models.InviteDelivery, error) {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return models.InviteDelivery{Sent: false, Error: models.ErrNotAuthenticated.Message}, models.ErrNotAuthenticated
	}
	if err := validateIDs("invite", inviteID); err != nil {
		return models.InviteDelivery{Sent: false, Error: err.Error()}, err
	}

	var delivery models.InviteDelivery
	if err := a.backend.Invoke(ctx, session.AccessToken, InviteEmailFn, map[string]string{
		"inviteId": inviteID,
	}, &delivery); err != nil {
		return models.InviteDelivery{Sent: false, Error: err.Error()}, err
	}
	return delivery, nil
}

func accessToken(ctx context.Context) string {
	if s, ok := auth.SessionFromContext(ctx); ok {
		return s.AccessToken
	}
	return ""
}

// validateIDs takes name/value pairs.
func validateIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := content.ValidateID(pairs[i+1]); err != nil {
			return models.NewAppError(models.CodeInvalidRequest, "invalid "+pairs[i]+" id: "+err.Error(), nil)
		}
	}
	return nil
}
