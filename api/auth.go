// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chatpay/chatpay-go/types"
)

// AuthResponse is the body returned by the login, register and Google login endpoints.
type AuthResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Token   string      `json:"token,omitempty"`
	User    *types.User `json:"user,omitempty"`
}

type userResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	User    *types.User `json:"user,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (c *Client) authenticate(ctx context.Context, endpoint string, body any) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.Request(ctx, http.MethodPost, endpoint, body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		msg := resp.Message
		if msg == "" {
			msg = "no user in response"
		}
		return &resp, fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	}
	if resp.Token != "" {
		if err = c.SetToken(ctx, resp.Token); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// Login authenticates with an email and password. The returned token is persisted.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates a new account. The returned token is persisted.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// GoogleLogin signs in with a Google account. The returned token is persisted.
func (c *Client) GoogleLogin(ctx context.Context, login *types.GoogleLogin) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/google", login)
}

// GetProfile returns the profile of the token owner. It doubles as token validation.
func (c *Client) GetProfile(ctx context.Context) (*types.User, error) {
	var resp userResponse
	err := c.Request(ctx, http.MethodGet, "/auth/profile", nil, &resp)
	if err != nil {
		return nil, err
	} else if resp.User == nil {
		return nil, fmt.Errorf("%w: profile response has no user", ErrUnexpectedResponse)
	}
	return resp.User, nil
}

// UpdateProfile changes the profile and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, update *types.ProfileUpdate) (*types.User, error) {
	var resp userResponse
	err := c.Request(ctx, http.MethodPut, "/auth/profile", update, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// VerifyEmail submits the one-time code sent to the given email. The backend may return the
// updated user, in which case it is returned, otherwise the user is nil.
func (c *Client) VerifyEmail(ctx context.Context, email, otp string) (*types.User, error) {
	var resp userResponse
	err := c.Request(ctx, http.MethodPost, "/auth/verify-email", map[string]string{
		"email": email,
		"otp":   otp,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ResendOTP asks the backend to send a new verification code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	var resp statusResponse
	return c.Request(ctx, http.MethodPost, "/auth/resend-otp", map[string]string{
		"email": email,
	}, &resp)
}
