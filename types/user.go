// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package types contains data types sent to and received from the ChatPay backend.
package types

import (
	"encoding/json"
)

// User contains the profile of the authenticated account. A non-nil *User held by the client
// is the session.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Bio            string `json:"bio,omitempty"`
	BusinessType   string `json:"businessType,omitempty"`
	IsVerified     bool   `json:"isVerified"`
	WalletAddress  string `json:"walletAddress,omitempty"`
}

// UnmarshalJSON accepts both "id" and the Mongo-style "_id" for the user ID.
func (u *User) UnmarshalJSON(data []byte) error {
	type plainUser User
	var raw struct {
		plainUser
		MongoID string `json:"_id"`
		Avatar  string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plainUser)
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	if u.ProfilePicture == "" {
		u.ProfilePicture = raw.Avatar
	}
	return nil
}

// Name returns the display name if set, otherwise the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// NotificationPreferences toggles the notification channels of a profile.
type NotificationPreferences struct {
	Email *bool `json:"email,omitempty"`
	Push  *bool `json:"push,omitempty"`
}

// ProfileUpdate contains the fields that can be changed with Client.UpdateProfile. Empty fields
// are not sent.
type ProfileUpdate struct {
	DisplayName    string `json:"displayName,omitempty"`
	Bio            string `json:"bio,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	BusinessType   string `json:"businessType,omitempty"`
	Preferences    *struct {
		Notifications *NotificationPreferences `json:"notifications,omitempty"`
	} `json:"preferences,omitempty"`
}

// GoogleLogin is the payload for signing in with a Google account.
type GoogleLogin struct {
	Code    string `json:"code,omitempty"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Contact is an entry in the user's contact list.
type Contact struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName,omitempty"`
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}
