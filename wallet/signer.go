// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"go.mau.fi/util/random"
	"golang.org/x/crypto/blake2b"
)

// Signer is a connected wallet account that can sign transactions.
type Signer interface {
	// Address returns the 0x-prefixed Sui address of the account.
	Address() string
	// SignTransaction signs BCS transaction bytes and returns the serialized signature in the
	// base64 format expected by sui_executeTransactionBlock. Wallets that ask the user for
	// confirmation return ErrUserRejected if the user declines.
	SignTransaction(ctx context.Context, txBytes []byte) (string, error)
}

const (
	ed25519Flag = 0x00
	// transaction data intent: scope 0, version 0, app id 0
	intentScopeTransaction = 0x00
	intentVersion          = 0x00
	intentAppSui           = 0x00
)

// KeypairSigner signs locally with an Ed25519 key.
type KeypairSigner struct {
	priv    ed25519.PrivateKey
	address string
}

var _ Signer = (*KeypairSigner)(nil)

// NewKeypairSigner creates a signer from a 32-byte Ed25519 seed.
func NewKeypairSigner(seed []byte) (*KeypairSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d byte seed, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeypairSigner{priv: priv, address: AddressFromPublicKey(pub)}, nil
}

// GenerateKeypairSigner creates a signer with a fresh random key.
func GenerateKeypairSigner() *KeypairSigner {
	signer, _ := NewKeypairSigner(random.Bytes(ed25519.SeedSize))
	return signer
}

// ParseKeypairSigner parses a private key in one of the formats Sui tooling emits: a hex seed
// (with or without 0x), a base64 seed, or the base64 keystore form with the scheme flag prefix.
func ParseKeypairSigner(key string) (*KeypairSigner, error) {
	key = strings.TrimSpace(key)
	if seed, err := hex.DecodeString(strings.TrimPrefix(key, "0x")); err == nil && len(seed) == ed25519.SeedSize {
		return NewKeypairSigner(seed)
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex or base64", ErrInvalidKey)
	}
	switch {
	case len(raw) == ed25519.SeedSize:
		return NewKeypairSigner(raw)
	case len(raw) == ed25519.SeedSize+1 && raw[0] == ed25519Flag:
		return NewKeypairSigner(raw[1:])
	default:
		return nil, fmt.Errorf("%w: unsupported key length %d", ErrInvalidKey, len(raw))
	}
}

// AddressFromPublicKey derives the Sui address of an Ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	data := make([]byte, 0, 1+len(pub))
	data = append(data, ed25519Flag)
	data = append(data, pub...)
	hash := blake2b.Sum256(data)
	return "0x" + hex.EncodeToString(hash[:])
}

func (ks *KeypairSigner) Address() string {
	return ks.address
}

// PublicKey returns the Ed25519 public key of the signer.
func (ks *KeypairSigner) PublicKey() ed25519.PublicKey {
	return ks.priv.Public().(ed25519.PublicKey)
}

// TransactionDigest returns the hash that is actually signed for the given transaction bytes.
func TransactionDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, 3+len(txBytes))
	msg = append(msg, intentScopeTransaction, intentVersion, intentAppSui)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

func (ks *KeypairSigner) SignTransaction(ctx context.Context, txBytes []byte) (string, error) {
	digest := TransactionDigest(txBytes)
	sig := ed25519.Sign(ks.priv, digest[:])
	pub := ks.PublicKey()
	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}
