//go:build e2e

package e2e

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"conversa/internal/stubs"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

const (
	backendKey    = "e2e-anon-key"
	backendSecret = "e2e-jwt-secret"
	adminPassword = "e2e-admin"
)

type TestServer struct {
	APIAddr    string
	AdminAddr  string
	BaseURL    string
	DBPath     string
	Backend    *stubs.Backend
	backendSrv *httptest.Server
	Cmd        *exec.Cmd
}

func getFreePort(t *testing.T) int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)

	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

// startServer runs the built binary against an in-memory backend.
func startServer(t *testing.T) *TestServer {
	stub := stubs.NewBackend(backendKey, backendSecret)
	backendSrv := httptest.NewServer(stub)

	apiAddr := fmt.Sprintf("localhost:%d", getFreePort(t))
	s := &TestServer{
		APIAddr:    apiAddr,
		AdminAddr:  fmt.Sprintf("localhost:%d", getFreePort(t)),
		BaseURL:    fmt.Sprintf("http://%s", apiAddr),
		DBPath:     filepath.Join(t.TempDir(), "conversa-e2e.db"),
		Backend:    stub,
		backendSrv: backendSrv,
	}

	s.Cmd = exec.Command(serverBinPath)
	s.Cmd.Env = s.env()
	// s.Cmd.Stdout = os.Stdout
	// s.Cmd.Stderr = os.Stderr

	err := s.Cmd.Start()
	require.NoError(t, err)

	// Anonymous /api/me answers 401 once sessions are restored.
	require.Eventually(t, func() bool {
		resp, err := http.Get(s.BaseURL + "/api/me")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusUnauthorized
	}, 5*time.Second, 200*time.Millisecond, "Server failed to start")

	return s
}

func (s *TestServer) env() []string {
	return append(os.Environ(),
		"AUTH_SECRET=e2e-session-secret",
		fmt.Sprintf("API_ADDR=%s", s.APIAddr),
		fmt.Sprintf("ADMIN_ADDR=%s", s.AdminAddr),
		fmt.Sprintf("BASE_URL=%s", s.BaseURL),
		fmt.Sprintf("CONVERSA_DB=%s", s.DBPath),
		fmt.Sprintf("BACKEND_URL=%s", s.backendSrv.URL),
		fmt.Sprintf("BACKEND_KEY=%s", backendKey),
		fmt.Sprintf("BACKEND_JWT_SECRET=%s", backendSecret),
		fmt.Sprintf("ADMIN_PASSWORD=%s", adminPassword),
	)
}

func (s *TestServer) Stop() {
	if s.Cmd != nil && s.Cmd.Process != nil {
		_ = s.Cmd.Process.Kill()
		_ = s.Cmd.Wait()
	}
	s.backendSrv.Close()
}

// ListSessions runs the binary in CLI mode against the running server.
func (s *TestServer) ListSessions(t *testing.T) string {
	cmd := exec.Command(serverBinPath, "-list-sessions")
	cmd.Env = s.env()

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to list sessions via CLI: %s", string(output))
	return string(output)
}

func (s *TestServer) RevokeUser(t *testing.T, userID string) {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("http://%s/admin/sessions?user=%s", s.AdminAddr, userID), nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", adminPassword)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func setupPlaywright(t *testing.T) (*playwright.Playwright, playwright.Browser) {
	pw, err := playwright.Run()
	require.NoError(t, err)

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	require.NoError(t, err)

	return pw, browser
}

func createBrowserContext(t *testing.T, browser playwright.Browser) playwright.BrowserContext {
	context, err := browser.NewContext()
	require.NoError(t, err)
	return context
}

func login(t *testing.T, page playwright.Page, email, password string) {
	err := page.Locator("#login").WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	require.NoError(t, err)

	require.NoError(t, page.Locator("#email").Fill(email))
	require.NoError(t, page.Locator("#password").Fill(password))
	require.NoError(t, page.Locator("#submit").Click())
}
