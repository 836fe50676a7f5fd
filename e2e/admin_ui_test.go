package e2e

import (
	"context"
	"encoding/json"
	oshttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"conversa/internal/auth"
	"conversa/internal/backend"
	"conversa/internal/http"
	"conversa/internal/models"
	"conversa/internal/rpc"
	"conversa/internal/stubs"
	"conversa/internal/ws"
)

type mockStorage struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func (m *mockStorage) UpsertSession(hash string, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[hash] = s
	return nil
}

func (m *mockStorage) DeleteSession(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, hash)
	return nil
}

func (m *mockStorage) DeleteUserSessions(userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hashes []string
	for hash, s := range m.sessions {
		if s.User.ID == userID {
			hashes = append(hashes, hash)
			delete(m.sessions, hash)
		}
	}
	return hashes, nil
}

func (m *mockStorage) ListSessions() (map[string]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Session, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out, nil
}

func TestAdminUI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := stubs.NewBackend("admin-ui-key", "admin-ui-secret")
	carol := stub.AddUser("carol@example.com", "pw", "Carol")
	backendSrv := httptest.NewServer(stub)
	defer backendSrv.Close()

	client, err := backend.New(backend.Config{URL: backendSrv.URL, Key: "admin-ui-key"})
	if err != nil {
		t.Fatalf("Failed to create backend client: %v", err)
	}

	store := &mockStorage{sessions: make(map[string]models.Session)}
	provider, err := auth.NewProvider(ctx, auth.Config{
		Secret:    "admin-ui-session-secret",
		JWTSecret: "admin-ui-secret",
	}, client, store)
	if err != nil {
		t.Fatalf("Failed to create auth provider: %v", err)
	}
	if err := provider.Restore(ctx); err != nil {
		t.Fatalf("Failed to restore sessions: %v", err)
	}

	hub := ws.NewHub(provider, rpc.New(client))
	adminServer := http.NewAdminServer(http.AdminServerConfig{
		User:     "admin",
		Password: "password",
	}, provider, hub)

	ts := httptest.NewServer(adminServer.Handler())
	defer ts.Close()

	httpClient := ts.Client()

	// 1. Unauthorized access
	resp, err := httpClient.Get(ts.URL + "/admin/sessions")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != oshttp.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}

	listSessions := func() []models.Session {
		req, _ := oshttp.NewRequest(oshttp.MethodGet, ts.URL+"/admin/sessions", nil)
		req.SetBasicAuth("admin", "password")
		resp, err := httpClient.Do(req)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != oshttp.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		var body models.APIResponse[[]models.Session]
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode sessions: %v", err)
		}
		return body.Data
	}

	// 2. Empty listing
	if sessions := listSessions(); len(sessions) != 0 {
		t.Errorf("Expected no sessions, got %v", sessions)
	}

	// 3. A sign-in shows up
	token, _, err := provider.SignIn(ctx, "carol@example.com", "pw")
	if err != nil {
		t.Fatalf("Failed to sign in: %v", err)
	}
	sessions := listSessions()
	if len(sessions) != 1 || sessions[0].User.ID != carol.ID {
		t.Errorf("Expected 1 session for carol, got %v", sessions)
	}

	// 4. Revoke
	req, _ := oshttp.NewRequest(oshttp.MethodDelete, ts.URL+"/admin/sessions?user="+carol.ID, nil)
	req.SetBasicAuth("admin", "password")
	resp, err = httpClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to revoke: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != oshttp.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	if sessions := listSessions(); len(sessions) != 0 {
		t.Errorf("Expected no sessions after revoke, got %v", sessions)
	}
	if state, _ := provider.Resolve(ctx, token); state.User != nil {
		t.Errorf("Expected revoked token to be anonymous, got %v", state.User)
	}

	// 5. Revoking again finds nothing
	resp, err = httpClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to revoke: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != oshttp.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
