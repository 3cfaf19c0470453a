// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package burnlink

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/carabiner-dev/burnlink/secrets"
)

const (
	// EnvelopeVersion is the version written to sealed envelopes
	EnvelopeVersion = 1

	// DefaultIterations is the PBKDF2 work factor of the browser client
	DefaultIterations = 200_000

	// MinPassphraseLength is the shortest passphrase accepted
	MinPassphraseLength = 8

	aesKeySize   = 32 // AES-256
	gcmNonceSize = 12
	saltSize     = 16
)

var (
	// ErrPassphraseTooShort is returned for passphrases under MinPassphraseLength
	ErrPassphraseTooShort = fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)

	// ErrDecrypt is returned when the envelope cannot be opened, either
	// because the passphrase is wrong or because the data was tampered with.
	ErrDecrypt = errors.New("unable to decrypt envelope")
)

var b64 = base64.RawURLEncoding

// deriveKey stretches the passphrase into an AES-256 key
func deriveKey(passphrase string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, aesKeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under a key derived from passphrase and returns
// the envelope ready to be uploaded. Every call draws a fresh salt and
// nonce. An iteration count of zero uses DefaultIterations.
func Seal(plaintext []byte, passphrase string, iterations int) (*secrets.Envelope, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	key := deriveKey(passphrase, salt, iterations)
	defer clear(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return &secrets.Envelope{
		Version:    EnvelopeVersion,
		Ciphertext: b64.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
		IV:         b64.EncodeToString(nonce),
		Salt:       b64.EncodeToString(salt),
	}, nil
}

// Open decrypts an envelope produced by Seal or by the browser client.
func Open(envelope *secrets.Envelope, passphrase string, iterations int) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("%w: envelope missing", secrets.ErrInvalidEnvelope)
	}
	if envelope.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", secrets.ErrInvalidEnvelope, envelope.Version)
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt, err := b64.DecodeString(envelope.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding salt: %w", secrets.ErrInvalidEnvelope, err)
	}
	nonce, err := b64.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding iv: %w", secrets.ErrInvalidEnvelope, err)
	}
	if len(nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", secrets.ErrInvalidEnvelope, gcmNonceSize, len(nonce))
	}
	ciphertext, err := b64.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding ciphertext: %w", secrets.ErrInvalidEnvelope, err)
	}

	key := deriveKey(passphrase, salt, iterations)
	defer clear(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
