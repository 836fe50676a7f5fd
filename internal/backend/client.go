// Package backend talks to the hosted backend service: its auth endpoints,
// database procedures and edge functions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

// TokenResponse is the answer of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
}

type Config struct {
	URL string
	Key string
	// HTTPClient defaults to a client without timeout; callers bound
	// calls with their context.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("backend url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("backend url is invalid: %w", err)
	}
	if cfg.Key == "" {
		return nil, errors.New("backend key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.Key,
		http:    httpClient,
	}, nil
}

// RPC calls a database procedure. accessToken may be empty, in which case
// the call runs with the API key's role. A null or empty result leaves out untouched.
func (c *Client) RPC(ctx context.Context, accessToken, fn string, params, out any) error {
	return c.post(ctx, accessToken, "/rest/v1/rpc/"+url.PathEscape(fn), params, out)
}

// Invoke calls an edge function.
func (c *Client) Invoke(ctx context.Context, accessToken, function string, body, out any) error {
	return c.post(ctx, accessToken, "/functions/v1/"+url.PathEscape(function), body, out)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (TokenResponse, error) {
	var resp TokenResponse
	err := c.post(ctx, "", "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	return resp, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	var resp TokenResponse
	err := c.post(ctx, "", "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	return resp, err
}

// SignOut revokes the refresh tokens behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.post(ctx, accessToken, "/auth/v1/logout", nil, nil)
}

func (c *Client) post(ctx context.Context, accessToken, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.key)
	bearer := accessToken
	if bearer == "" {
		bearer = c.key
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	trimmed := bytes.TrimSpace(data)
	if out == nil || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError understands the shapes used by the different backend
// services: {code, message, details, hint}, {error, error_description} and {msg}.
func decodeError(status int, data []byte) *Error {
	var raw struct {
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Msg              string `json:"msg"`
		ErrorCode        string `json:"error_code"`
		ErrorName        string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	e := &Error{Status: status}
	if err := json.Unmarshal(data, &raw); err != nil {
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	switch code := raw.Code.(type) {
	case string:
		e.Code = code
	case float64:
		e.Code = fmt.Sprintf("%d", int(code))
	}
	if raw.ErrorCode != "" {
		e.Code = raw.ErrorCode
	} else if e.Code == "" {
		e.Code = raw.ErrorName
	}

	e.Details = raw.Details
	e.Hint = raw.Hint
	for _, m := range []string{raw.Message, raw.ErrorDescription, raw.Msg, raw.ErrorName} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
