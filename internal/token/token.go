// internal/token/token.go
// Package token implements the reversible access-token codec used in shared
// gift links. A user identifier is encrypted under a process-wide secret into
// an opaque string; decoding recovers the identifier or fails with a
// DecodeError that callers must treat as client input, never a server fault.
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters. The salt is fixed: tokens must stay decodable
// across process restarts with the same secret.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
	keyLen  = 32
	kdfSalt = "salt"
)

// fallbackSecret is used when no secret is configured. Development only;
// every Codec built from it logs a warning.
const fallbackSecret = "fallback-secret-key-do-not-use-in-production"

// DecodeError indicates a malformed or forged token. It wraps the structural
// or cryptographic cause without exposing it to clients.
type DecodeError struct {
	cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid access token: %v", e.cause)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.cause }

// Codec encodes and decodes user identities with AES-256-CBC. Each Encode
// draws a fresh random IV, so encoding the same identity twice yields
// different tokens; Decode is deterministic.
type Codec struct {
	key []byte
}

// NewCodec derives the cipher key from the configured secret. An empty
// secret falls back to a development-only key and logs a warning.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		slog.Warn("encryption secret not set, using development fallback key (NOT FOR PRODUCTION)")
		secret = fallbackSecret
	}
	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Encode encrypts a user identity into an opaque token of the form
// hex(iv):hex(ciphertext), safe for embedding in a URL path segment after
// escaping.
func (c *Codec) Encode(identity string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	plaintext := pad([]byte(identity))
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decode recovers the identity from a token produced by Encode. Any
// structural defect, wrong key, truncation, or corruption yields a
// *DecodeError.
func (c *Codec) Decode(tok string) (string, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 2 {
		return "", &DecodeError{cause: fmt.Errorf("expected iv:ciphertext, got %d segments", len(parts))}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &DecodeError{cause: fmt.Errorf("bad IV encoding: %w", err)}
	}
	if len(iv) != aes.BlockSize {
		return "", &DecodeError{cause: fmt.Errorf("bad IV length %d", len(iv))}
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &DecodeError{cause: fmt.Errorf("bad ciphertext encoding: %w", err)}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", &DecodeError{cause: fmt.Errorf("bad ciphertext length %d", len(ciphertext))}
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	identity, err := unpad(plaintext)
	if err != nil {
		return "", &DecodeError{cause: err}
	}
	return string(identity), nil
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, rejecting anything inconsistent. A wrong key
// almost always surfaces here as garbage padding.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
