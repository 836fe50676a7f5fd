package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"conversa/internal/auth/accesstoken"
	"conversa/internal/backend"
	"conversa/internal/content"
	"conversa/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const DefaultSessionTTL = 24 * time.Hour

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// StateReader is the read-only view of authentication handed to consumers.
type StateReader interface {
	Resolve(ctx context.Context, token string) (models.AuthState, *models.Session)
}

type SessionStore interface {
	UpsertSession(tokenHash string, session models.Session) error
	DeleteSession(tokenHash string) error
	DeleteUserSessions(userID string) ([]string, error)
	ListSessions() (map[string]models.Session, error)
}

type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (backend.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (backend.TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

type Config struct {
	// Secret keys the hash under which session tokens are cached and stored.
	Secret string
	// JWTSecret verifies backend access tokens. When empty the claims are
	// read without verification; tokens only ever come straight from the backend.
	JWTSecret  string
	SessionTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.SessionTTL < 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}

// Provider is the only writer of authentication state: it signs users in
// and out, restores persisted sessions and refreshes expired access tokens.
type Provider struct {
	Config
	hashKey   [32]byte
	backend   Backend
	store     SessionStore
	sessions  geche.Geche[string, *models.Session]
	refreshMu sync.Mutex
	// writeMu orders session writes against removals.
	writeMu sync.Mutex
	loading atomic.Bool
	now     func() time.Time
}

// NewProvider returns a provider in the loading state; call Restore to settle it.
func NewProvider(ctx context.Context, config Config, b Backend, store SessionStore) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		Config:   config,
		hashKey:  blake2b.Sum256([]byte(config.Secret)),
		backend:  b,
		store:    store,
		sessions: geche.NewMapTTLCache[string, *models.Session](ctx, config.SessionTTL, time.Minute),
		now:      time.Now,
	}
	p.loading.Store(true)
	return p, nil
}

// Restore loads persisted sessions. The provider reports Loading until it returns.
func (p *Provider) Restore(ctx context.Context) error {
	defer p.loading.Store(false)

	stored, err := p.store.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to restore sessions: %w", err)
	}

	now := p.now()
	restored := 0
	for hash, s := range stored {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.sessionExpired(&s, now) {
			if err := p.store.DeleteSession(hash); err != nil {
				slog.Warn("failed to delete stale session", "user_id", s.User.ID, "error", err)
			}
			continue
		}
		s := s
		p.sessions.Set(hash, &s)
		restored++
	}

	slog.Info("sessions restored", "count", restored, "dropped", len(stored)-restored)
	return nil
}

// Loading reports whether sessions are still being restored.
func (p *Provider) Loading() bool {
	return p.loading.Load()
}

// Resolve returns the auth state for a browser token and, when signed in,
// a copy of its session.
func (p *Provider) Resolve(ctx context.Context, token string) (models.AuthState, *models.Session) {
	if p.loading.Load() {
		return models.AuthState{Loading: true}, nil
	}
	if token == "" {
		return models.AuthState{}, nil
	}

	hash := p.hashToken(token)
	s, err := p.sessions.Get(hash)
	if err != nil {
		return models.AuthState{}, nil
	}

	now := p.now()
	if p.sessionExpired(s, now) {
		p.drop(hash)
		return models.AuthState{}, nil
	}

	if s.Expired(now) {
		s, err = p.refresh(ctx, hash)
		if err != nil {
			slog.Warn("session refresh failed", "error", err)
			p.drop(hash)
			return models.AuthState{}, nil
		}
	}

	session := *s
	user := session.User
	return models.AuthState{User: &user}, &session
}

// SignIn exchanges credentials with the backend and opens a session.
// It returns the browser token. Backend errors are returned as they are.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, *models.Session, error) {
	tokens, err := p.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	now := p.now()
	s, err := p.sessionFromTokens(tokens, uuid.NewString(), now, now)
	if err != nil {
		return "", nil, err
	}

	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}

	hash := p.hashToken(token)
	p.writeMu.Lock()
	err = p.store.UpsertSession(hash, *s)
	if err == nil {
		p.sessions.Set(hash, s)
	}
	p.writeMu.Unlock()
	if err != nil {
		return "", nil, fmt.Errorf("failed to persist session: %w", err)
	}

	slog.Info("signed in", "user_id", s.User.ID, "session_id", s.ID)
	session := *s
	return token, &session, nil
}

// SignOut ends the session behind token. Unknown tokens are not an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := p.hashToken(token)
	s, err := p.sessions.Get(hash)
	p.drop(hash)
	if err != nil {
		return nil
	}

	if err := p.backend.SignOut(ctx, s.AccessToken); err != nil {
		slog.Warn("backend sign out failed", "user_id", s.User.ID, "error", err)
	}
	slog.Info("signed out", "user_id", s.User.ID, "session_id", s.ID)
	return nil
}

// RevokeUser ends every session of a user and returns how many there were.
func (p *Provider) RevokeUser(userID string) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	hashes, err := p.store.DeleteUserSessions(userID)
	if err != nil {
		return 0, err
	}
	for _, hash := range hashes {
		_ = p.sessions.Del(hash)
	}
	return len(hashes), nil
}

// Sessions lists the persisted sessions, oldest first.
func (p *Provider) Sessions() ([]models.Session, error) {
	stored, err := p.store.ListSessions()
	if err != nil {
		return nil, err
	}
	sessions := make([]models.Session, 0, len(stored))
	for _, s := range stored {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (p *Provider) refresh(ctx context.Context, hash string) (*models.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	current, err := p.sessions.Get(hash)
	if err != nil {
		return nil, models.ErrNotFound
	}
	now := p.now()
	if !current.Expired(now) {
		// Refreshed by a concurrent request.
		return current, nil
	}

	tokens, err := p.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	updated, err := p.sessionFromTokens(tokens, current.ID, current.CreatedAt, now)
	if err != nil {
		return nil, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// Signed out or revoked while the backend was answering.
	if _, err := p.sessions.Get(hash); err != nil {
		return nil, models.ErrNotFound
	}
	if err := p.store.UpsertSession(hash, *updated); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	p.sessions.Set(hash, updated)
	return updated, nil
}

func (p *Provider) drop(hash string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = p.sessions.Del(hash)
	if err := p.store.DeleteSession(hash); err != nil {
		slog.Warn("failed to delete session", "error", err)
	}
}

func (p *Provider) sessionExpired(s *models.Session, now time.Time) bool {
	return !now.Before(s.CreatedAt.Add(p.SessionTTL))
}

func (p *Provider) parseAccessToken(token string) (*accesstoken.Claims, error) {
	var claims *accesstoken.Claims
	var err error
	if p.JWTSecret != "" {
		claims, err = accesstoken.Parse(token, p.JWTSecret, p.now)
	} else {
		claims, err = accesstoken.ParseUnverified(token)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return claims, nil
}

func (p *Provider) sessionFromTokens(tokens backend.TokenResponse, id string, createdAt, now time.Time) (*models.Session, error) {
	claims, err := p.parseAccessToken(tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	displayName := content.Sanitize(claims.DisplayName())
	if displayName == "" {
		displayName = claims.Email
	}

	var expiresAt time.Time
	switch {
	case tokens.ExpiresAt > 0:
		expiresAt = time.Unix(tokens.ExpiresAt, 0)
	case tokens.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		expiresAt = claims.ExpiresAt.Time
	}

	return &models.Session{
		ID: id,
		User: models.Identity{
			ID:          claims.Subject,
			Email:       claims.Email,
			DisplayName: displayName,
		},
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
		CreatedAt:    createdAt,
	}, nil
}

func (p *Provider) hashToken(token string) string {
	h, err := blake2b.New256(p.hashKey[:])
	if err != nil {
		// Only possible with keys longer than 64 bytes.
		panic(err)
	}
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
