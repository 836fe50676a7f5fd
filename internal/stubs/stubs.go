// Package stubs is an in-memory stand-in for the hosted backend, good
// enough for tests and local runs behind httptest.
package stubs

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"conversa/internal/auth/accesstoken"
	"conversa/internal/models"

	"github.com/google/uuid"
)

const (
	UnreadCountsFn   = "get_unread_counts"
	MarkThreadReadFn = "mark_thread_read"
	InviteEmailFn    = "send-invite-email"
)

type stubUser struct {
	models.Identity
	password string
}

// ThreadRead records a mark_thread_read call.
type ThreadRead struct {
	TenantID string
	ThreadID string
}

type stubFailure struct {
	status int
	body   map[string]string
}

type Backend struct {
	Key       string
	JWTSecret string
	TokenTTL  time.Duration
	Now       func() time.Time

	mu       sync.Mutex
	users    map[string]stubUser
	refresh  map[string]string
	unread   map[string][]models.UnreadCount
	reads    []ThreadRead
	invites  []string
	calls    map[string]int
	failures map[string]stubFailure
}

func NewBackend(key, jwtSecret string) *Backend {
	return &Backend{
		Key:       key,
		JWTSecret: jwtSecret,
		TokenTTL:  time.Hour,
		Now:       time.Now,
		users:     make(map[string]stubUser),
		refresh:   make(map[string]string),
		unread:    make(map[string][]models.UnreadCount),
		calls:     make(map[string]int),
		failures:  make(map[string]stubFailure),
	}
}

func (b *Backend) AddUser(email, password, displayName string) models.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := models.Identity{ID: uuid.NewString(), Email: email, DisplayName: displayName}
	b.users[email] = stubUser{Identity: id, password: password}
	return id
}

// SetUnread sets what get_unread_counts returns for tenant. A nil slice
// makes the procedure answer null.
func (b *Backend) SetUnread(tenantID string, counts []models.UnreadCount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unread[tenantID] = counts
}

// Fail makes the named procedure or function answer with an error.
func (b *Backend) Fail(name string, status int, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[name] = stubFailure{status: status, body: map[string]string{"code": code, "message": message}}
}

// Recover undoes Fail.
func (b *Backend) Recover(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, name)
}

// Calls returns how many times the named procedure, function or auth grant was called.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *Backend) Reads() []ThreadRead {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ThreadRead(nil), b.reads...)
}

func (b *Backend) Invites() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.invites...)
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return
	}
	if r.Header.Get("apikey") != b.Key {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}

	switch {
	case r.URL.Path == "/auth/v1/token":
		b.handleToken(w, r)
	case r.URL.Path == "/auth/v1/logout":
		b.count("logout")
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/rpc/"):
		b.handleRPC(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/rpc/"))
	case strings.HasPrefix(r.URL.Path, "/functions/v1/"):
		b.handleFunction(w, r, strings.TrimPrefix(r.URL.Path, "/functions/v1/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	grant := r.URL.Query().Get("grant_type")
	b.count(grant)

	var req struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "bad json"})
		return
	}

	b.mu.Lock()
	var user stubUser
	var ok bool
	switch grant {
	case "password":
		user, ok = b.users[req.Email]
		ok = ok && user.password == req.Password
	case "refresh_token":
		var email string
		email, ok = b.refresh[req.RefreshToken]
		if ok {
			delete(b.refresh, req.RefreshToken)
			user, ok = b.users[email]
		}
	}
	var refresh string
	if ok {
		refresh = uuid.NewString()
		b.refresh[refresh] = user.Email
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid login credentials",
		})
		return
	}

	now := b.Now()
	token, err := accesstoken.Mint(b.JWTSecret, user.Identity, b.TokenTTL, now)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    int64(b.TokenTTL.Seconds()),
		"expires_at":    now.Add(b.TokenTTL).Unix(),
		"refresh_token": refresh,
	})
}

func (b *Backend) handleRPC(w http.ResponseWriter, r *http.Request, fn string) {
	b.count(fn)
	if b.failed(w, fn) {
		return
	}

	var params map[string]string
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "Invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch fn {
	case UnreadCountsFn:
		counts := b.unread[params["p_tenant_id"]]
		writeJSON(w, http.StatusOK, counts)
	case MarkThreadReadFn:
		tenantID, threadID := params["p_tenant_id"], params["p_thread_id"]
		b.reads = append(b.reads, ThreadRead{TenantID: tenantID, ThreadID: threadID})
		for i, c := range b.unread[tenantID] {
			if c.ThreadID == threadID {
				b.unread[tenantID][i].UnreadCount = 0
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "PGRST202",
			"message": "Could not find the function public." + fn,
		})
	}
}

func (b *Backend) handleFunction(w http.ResponseWriter, r *http.Request, name string) {
	b.count(name)
	if b.failed(w, name) {
		return
	}
	if name != InviteEmailFn {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "function not found"})
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, err := accesstoken.Parse(bearer, b.JWTSecret, b.Now); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Invalid JWT"})
		return
	}

	var req struct {
		InviteID string `json:"inviteId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InviteID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "inviteId is required"})
		return
	}

	b.mu.Lock()
	b.invites = append(b.invites, req.InviteID)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (b *Backend) count(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[name]++
}

func (b *Backend) failed(w http.ResponseWriter, name string) bool {
	b.mu.Lock()
	f, ok := b.failures[name]
	b.mu.Unlock()
	if ok {
		writeJSON(w, f.status, f.body)
	}
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
