// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry returns the exp claim of a JWT without verifying the signature. ok is false if
// the token isn't a JWT or has no expiry.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return
	}
	expClaim, err := parsed.Claims.GetExpirationTime()
	if err != nil || expClaim == nil {
		return
	}
	return expClaim.Time, true
}

// TokenExpired returns true if the held token is a JWT whose expiry has passed. Tokens that
// can't be decoded are left for the backend to judge.
func (c *Client) TokenExpired() bool {
	token := c.Token()
	if token == "" {
		return false
	}
	exp, ok := TokenExpiry(token)
	return ok && time.Now().After(exp)
}
