// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"errors"
	"fmt"
)

// Errors that the request functions can return.
var (
	ErrNetwork            = errors.New("network error")
	ErrUnexpectedResponse = errors.New("unexpected response from backend")
	ErrAuthFailed         = errors.New("authentication was not successful")
)

// AuthenticationError is returned when the backend responds with HTTP 401. By the time it is
// returned, the token has already been cleared.
type AuthenticationError struct {
	// Message is what the backend said, if anything.
	Message string
}

func (ae *AuthenticationError) Error() string {
	return "Authentication failed. Please log in again."
}

// HTTPError is returned for any other non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (he *HTTPError) Error() string {
	return he.Message
}

// Is makes HTTPError compatible with errors.Is for matching status codes:
//
//	errors.Is(err, &api.HTTPError{StatusCode: 404})
func (he *HTTPError) Is(other error) bool {
	otherErr, ok := other.(*HTTPError)
	return ok && otherErr.StatusCode == he.StatusCode
}

// IsAuthError returns true if the error was caused by an invalidated token.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func wrapNetworkError(err error) error {
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
