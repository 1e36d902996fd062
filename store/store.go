// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store contains interfaces for storing the little client-side state chatpay keeps
// between runs: the auth token and the onboarding resume hint.
package store

import (
	"context"
	"sync"
)

// SessionStore persists the auth token and the onboarding hint.
//
// The onboarding hint is only a resume aid: it says that the last session was left on the
// profile setup screen. It is never an authority on whether the profile is complete.
type SessionStore interface {
	// GetToken returns the stored token, or an empty string if there is none.
	GetToken(ctx context.Context) (string, error)
	PutToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error

	GetOnboardingHint(ctx context.Context) (bool, error)
	PutOnboardingHint(ctx context.Context, pending bool) error
}

// MemoryStore is a SessionStore that only lives as long as the process.
type MemoryStore struct {
	lock    sync.Mutex
	token   string
	pending bool
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) GetToken(_ context.Context) (string, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.token, nil
}

func (ms *MemoryStore) PutToken(_ context.Context, token string) error {
	ms.lock.Lock()
	ms.token = token
	ms.lock.Unlock()
	return nil
}

func (ms *MemoryStore) DeleteToken(_ context.Context) error {
	ms.lock.Lock()
	ms.token = ""
	ms.lock.Unlock()
	return nil
}

func (ms *MemoryStore) GetOnboardingHint(_ context.Context) (bool, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.pending, nil
}

func (ms *MemoryStore) PutOnboardingHint(_ context.Context, pending bool) error {
	ms.lock.Lock()
	ms.pending = pending
	ms.lock.Unlock()
	return nil
}
