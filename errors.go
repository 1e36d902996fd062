// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatpay

import (
	"errors"
	"fmt"

	"github.com/chatpay/chatpay-go/types"
)

// Miscellaneous errors
var (
	ErrBusy             = errors.New("another action is already in progress")
	ErrNotLoggedIn      = errors.New("the client is not logged in")
	ErrAlreadyLoggedIn  = errors.New("the client is already logged in")
	ErrNoChatSelected   = errors.New("no chat is selected")
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrDrawerClosed     = errors.New("the payment drawer is not open")
	ErrUnknownDrawer    = errors.New("unknown payment drawer kind")
	ErrUnsupportedProxy = errors.New("unsupported proxy scheme")
)

// Validation errors returned by SubmitDrawer before anything is sent.
var (
	ErrMissingAmount    = errors.New("amount is required")
	ErrMissingReceiver  = errors.New("receiver details are required")
	ErrMissingReference = errors.New("reference ID is required")
)

// ErrInvalidTransition is returned when an onboarding action is not valid in the current view.
type ErrInvalidTransition struct {
	From   types.OnboardingView
	Action string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("can't %s from the %s view", e.Action, e.From)
}
