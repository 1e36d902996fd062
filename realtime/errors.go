// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("realtime channel is not connected")
	ErrAlreadyConnected = errors.New("realtime channel is already connected")
	ErrNoToken          = errors.New("can't connect realtime channel without a token")
	ErrEmptyChatID      = errors.New("chat ID must not be empty")
	ErrConnectAborted   = errors.New("realtime connect was aborted by disconnect")
)

// ErrWithStatusCode is returned by Connect when the handshake got an HTTP response.
type ErrWithStatusCode struct {
	error
	StatusCode int
}

func (e ErrWithStatusCode) Error() string {
	return fmt.Sprintf("%v (status code %d)", e.error, e.StatusCode)
}

func (e ErrWithStatusCode) Unwrap() error {
	return e.error
}
