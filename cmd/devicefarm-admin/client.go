// ABOUTME: Minimal JSON client for the devicefarm-gateway HTTP API
// ABOUTME: Sends bearer-authenticated requests and unwraps {success, message} envelopes

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// errNotSucceeded is wrapped when the gateway answers with success=false.
var errNotSucceeded = errors.New("request not successful")

// apiClient talks to one gateway.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the part of every response the client inspects.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type accessTokenCreated struct {
	Title string `json:"title"`
	Token string `json:"token"`
}

type adbKeyAdded struct {
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
}

type meResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Group string `json:"group"`
	Admin bool   `json:"admin"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// do sends body as JSON and decodes the response into out. A non-2xx status
// or success=false becomes an error carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s (status %d)", errNotSucceeded, msg, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// doStatus calls an endpoint that answers {status} instead of the
// {success} envelope.
func (c *apiClient) doStatus(ctx context.Context, method, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return "", fmt.Errorf("%w: %s (status %d)", errNotSucceeded, env.Message, resp.StatusCode)
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return st.Status, nil
}

func (c *apiClient) createAccessToken(ctx context.Context, email string) (*accessTokenCreated, error) {
	var out accessTokenCreated
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/access-tokens", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) deleteAccessToken(ctx context.Context, email, title string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/admin/access-tokens", map[string]string{"email": email, "title": title}, nil)
}

func (c *apiClient) addAdbKey(ctx context.Context, email, publicKey, title string) (*adbKeyAdded, error) {
	body := map[string]string{"email": email, "publickey": publicKey}
	if title != "" {
		body["title"] = title
	}
	var out adbKeyAdded
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/adb-keys", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) deleteAdbKey(ctx context.Context, email, fingerprint string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/admin/adb-keys", map[string]string{"email": email, "fingerprint": fingerprint}, nil)
}

func (c *apiClient) me(ctx context.Context) (*meResponse, error) {
	var out meResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
