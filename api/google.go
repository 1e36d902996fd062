// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chatpay/chatpay-go/types"
)

// GoogleUserInfoURL is the endpoint used by FetchGoogleUserInfo.
var GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleUserInfo is the subset of the Google userinfo response used for signing in.
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// LoginPayload converts the user info into a GoogleLogin body. The access token is sent as the code.
func (gui *GoogleUserInfo) LoginPayload(accessToken string) *types.GoogleLogin {
	return &types.GoogleLogin{
		Code:    accessToken,
		Email:   gui.Email,
		Name:    gui.Name,
		Picture: gui.Picture,
	}
}

// FetchGoogleUserInfo exchanges an OAuth access token for the Google profile of its owner.
// The backend token is not attached to this request.
func (c *Client) FetchGoogleUserInfo(ctx context.Context, accessToken string) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GoogleUserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, wrapNetworkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: "Failed to fetch Google user info"}
	}
	var info GoogleUserInfo
	if err = json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	} else if info.Email == "" {
		return nil, fmt.Errorf("%w: google user info has no email", ErrUnexpectedResponse)
	}
	return &info, nil
}
