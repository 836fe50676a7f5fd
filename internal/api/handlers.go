package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conversa/internal/auth"
	"conversa/internal/content"
	"conversa/internal/models"
)

// Authenticator is the part of the auth provider the handlers drive.
type Authenticator interface {
	auth.StateReader
	SignIn(ctx context.Context, email, password string) (string, *models.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Adapters are the remote calls exposed over HTTP.
type Adapters interface {
	GetUnreadCounts(ctx context.Context, tenantID string) ([]models.UnreadCount, error)
	MarkThreadRead(ctx context.Context, tenantID, threadID string) error
	SendInviteEmail(ctx context.Context, inviteID string) (models.InviteDelivery, error)
}

// Notifier tells a user's live connections that a tenant's counts changed.
type Notifier interface {
	Publish(ctx context.Context, userID, tenantID string)
}

type API struct {
	auth         Authenticator
	adapters     Adapters
	notifier     Notifier
	sessionTTL   time.Duration
	secureCookie bool
}

func New(authenticator Authenticator, adapters Adapters, notifier Notifier, sessionTTL time.Duration, secureCookie bool) *API {
	return &API{
		auth:         authenticator,
		adapters:     adapters,
		notifier:     notifier,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from,omitempty"`
}

type LoginResponse struct {
	User     models.Identity `json:"user"`
	Redirect string          `json:"redirect"`
}

// LoginHandler accepts JSON or a form post. Forms are answered with a
// redirect back to the page the visitor came from.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	isForm := !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	if isForm {
		if err := r.ParseForm(); err != nil {
			msg := "failed to parse form"
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				msg = "request body too large"
			}
			WriteError(w, r, models.NewAppError(models.CodeInvalidRequest, msg, nil))
			return
		}
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
		req.From = r.FormValue("from")
	} else if err := ReadJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		WriteError(w, r, invalidRequest(map[string]string{"email": "required", "password": "required"}))
		return
	}

	token, session, err := a.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("sign in failed", "email", req.Email, "error", err)
		if isForm {
			http.Redirect(w, r, auth.LoginPath+"?error=1&from="+url.QueryEscape(req.From), http.StatusSeeOther)
			return
		}
		WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		Expires:  session.CreatedAt.Add(a.sessionTTL),
	})

	redirect := content.SafeRedirect(req.From)
	if isForm {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	writeEnvelope(w, http.StatusOK, models.Success(LoginResponse{User: session.User, Redirect: redirect}))
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.SignOut(r.Context(), auth.RequestToken(r)); err != nil {
		slog.Warn("sign out failed", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   a.secureCookie,
		Path:     "/",
		MaxAge:   -1,
	})
	writeEnvelope(w, http.StatusOK, models.Success[any](nil))
}

func (a *API) MeHandler(r *http.Request) (any, error) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return nil, models.ErrNotAuthenticated
	}
	return session.User, nil
}

func (a *API) UnreadCountsHandler(r *http.Request) (any, error) {
	return a.adapters.GetUnreadCounts(r.Context(), r.PathValue("tenantID"))
}

// MarkReadHandler marks a thread read and refreshes the caller's live badges.
func (a *API) MarkReadHandler(r *http.Request) (any, error) {
	tenantID := r.PathValue("tenantID")
	if err := a.adapters.MarkThreadRead(r.Context(), tenantID, r.PathValue("threadID")); err != nil {
		return nil, err
	}
	if session, ok := auth.SessionFromContext(r.Context()); ok && a.notifier != nil {
		a.notifier.Publish(r.Context(), session.User.ID, tenantID)
	}
	return nil, nil
}

func (a *API) SendInviteHandler(r *http.Request) (any, error) {
	delivery, err := a.adapters.SendInviteEmail(r.Context(), r.PathValue("inviteID"))
	if err != nil {
		return nil, err
	}
	return delivery, nil
}
