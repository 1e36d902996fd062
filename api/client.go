// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package api implements a client for the ChatPay REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chatpay/chatpay-go/metrics"
	"github.com/chatpay/chatpay-go/store"
	cpLog "github.com/chatpay/chatpay-go/util/log"
)

// DefaultBaseURL is the backend used when no other URL is configured.
const DefaultBaseURL = "http://localhost:5000/api"

// Client issues authenticated requests to the backend and owns the bearer token.
//
// Every request is a single attempt. Retrying is left to the caller.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Store   store.SessionStore

	log cpLog.Logger

	tokenLock sync.RWMutex
	token     string

	handlerLock       sync.RWMutex
	onUnauthenticated func(ctx context.Context)
}

// NewClient creates a new API client. The session store and logger may be nil, in which case
// the token is kept in memory only and nothing is logged.
func NewClient(baseURL string, sessionStore store.SessionStore, log cpLog.Logger) *Client {
	if log == nil {
		log = cpLog.Noop
	}
	if sessionStore == nil {
		sessionStore = store.NewMemoryStore()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Store:   sessionStore,
		log:     log,
	}
}

// SetUnauthenticatedHandler sets the function called after a 401 response has cleared the
// token. It is called synchronously before the request function returns.
func (c *Client) SetUnauthenticatedHandler(fn func(ctx context.Context)) {
	c.handlerLock.Lock()
	c.onUnauthenticated = fn
	c.handlerLock.Unlock()
}

// Token returns the token currently held in memory.
func (c *Client) Token() string {
	c.tokenLock.RLock()
	defer c.tokenLock.RUnlock()
	return c.token
}

// SetToken sets the token and persists it in the session store.
func (c *Client) SetToken(ctx context.Context, token string) error {
	c.tokenLock.Lock()
	c.token = token
	c.tokenLock.Unlock()
	if err := c.Store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// LoadToken reads the persisted token into memory and returns it.
func (c *Client) LoadToken(ctx context.Context) (string, error) {
	token, err := c.Store.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	c.tokenLock.Lock()
	c.token = token
	c.tokenLock.Unlock()
	return token, nil
}

// ClearToken forgets the token both in memory and in the session store.
func (c *Client) ClearToken(ctx context.Context) error {
	c.tokenLock.Lock()
	c.token = ""
	c.tokenLock.Unlock()
	if err := c.Store.DeleteToken(ctx); err != nil {
		return fmt.Errorf("failed to delete persisted token: %w", err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Request sends a JSON request to the given endpoint (relative to BaseURL) and decodes the
// response into out, which may be nil.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	route := routeLabel(endpoint)
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(method, route, 0, time.Since(start))
		c.log.Debugf("%s %s failed: %v", method, endpoint, err)
		return wrapNetworkError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	metrics.RecordAPIRequest(method, route, resp.StatusCode, time.Since(start))
	if err != nil {
		return wrapNetworkError(fmt.Errorf("failed to read response body: %w", err))
	}
	c.log.Debugf("%s %s -> %d", method, endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody errorBody
		parseErr := json.Unmarshal(data, &errBody)
		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized(ctx)
			return &AuthenticationError{Message: firstNonEmpty(errBody.Error, errBody.Message)}
		}
		var msg string
		if parseErr != nil {
			msg = "Network error"
		} else {
			msg = firstNonEmpty(errBody.Error, errBody.Message, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil && len(data) > 0 {
		if err = json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
	}
	return nil
}

func (c *Client) handleUnauthorized(ctx context.Context) {
	c.log.Warnf("Got HTTP 401, clearing token")
	if err := c.ClearToken(ctx); err != nil {
		c.log.Errorf("Failed to clear token after 401: %v", err)
	}
	c.handlerLock.RLock()
	handler := c.onUnauthenticated
	c.handlerLock.RUnlock()
	if handler != nil {
		handler(ctx)
	}
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if val != "" {
			return val
		}
	}
	return ""
}

// routeLabel replaces IDs in an endpoint path so that metrics don't get one series per chat.
func routeLabel(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		endpoint = u.Path
	}
	parts := strings.Split(endpoint, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "chats" && parts[i] != "" {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
