// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a SessionStore backed by a small JSON file, for command-line use where a database
// would be overkill. The file is replaced atomically on every write.
type FileStore struct {
	path string
	lock sync.Mutex
}

var _ SessionStore = (*FileStore)(nil)

type fileState struct {
	Token             string `json:"token,omitempty"`
	PendingOnboarding bool   `json:"pending_onboarding,omitempty"`
}

// NewFileStore returns a store that keeps its state at the given path. The file and its parent
// directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fst *FileStore) read() (state fileState, err error) {
	data, err := os.ReadFile(fst.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	} else if err != nil {
		return state, fmt.Errorf("failed to read session file: %w", err)
	}
	if err = json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to parse session file: %w", err)
	}
	return state, nil
}

func (fst *FileStore) write(state fileState) error {
	if state == (fileState{}) {
		err := os.Remove(fst.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(&state)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fst.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := fst.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, fst.path)
}

func (fst *FileStore) update(fn func(*fileState)) error {
	fst.lock.Lock()
	defer fst.lock.Unlock()
	state, err := fst.read()
	if err != nil {
		return err
	}
	fn(&state)
	return fst.write(state)
}

func (fst *FileStore) GetToken(_ context.Context) (string, error) {
	fst.lock.Lock()
	defer fst.lock.Unlock()
	state, err := fst.read()
	return state.Token, err
}

func (fst *FileStore) PutToken(_ context.Context, token string) error {
	return fst.update(func(state *fileState) { state.Token = token })
}

func (fst *FileStore) DeleteToken(_ context.Context) error {
	return fst.update(func(state *fileState) { state.Token = "" })
}

func (fst *FileStore) GetOnboardingHint(_ context.Context) (bool, error) {
	fst.lock.Lock()
	defer fst.lock.Unlock()
	state, err := fst.read()
	return state.PendingOnboarding, err
}

func (fst *FileStore) PutOnboardingHint(_ context.Context, pending bool) error {
	return fst.update(func(state *fileState) { state.PendingOnboarding = pending })
}
