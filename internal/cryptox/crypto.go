// Package cryptox implements the at-rest message encryption engine:
// AES-256-GCM sealing of message bodies into a single encoded blob
// (nonce, ciphertext and authentication tag) plus a keyed HMAC for
// integrity tags independent of confidentiality.
//
// The engine uses one process-wide symmetric key for every conversation.
// That is a known security weakness carried over from the original design;
// KeyProvider is the seam through which a per-conversation or per-user
// keying scheme can be substituted without touching the delivery protocol.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/peertutor/tutorchat/internal/common"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const nonceSize = 12

// Engine performs authenticated encryption and keyed hashing with a single
// process-wide key.
type Engine struct {
	aead cipher.AEAD
	key  []byte
}

// NewEngine constructs an Engine from the provider's key. The key must be
// KeySize bytes.
func NewEngine(kp KeyProvider) (*Engine, error) {
	key, err := kp.Key()
	if err != nil {
		return nil, fmt.Errorf("key provider: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Engine{aead: aead, key: key}, nil
}

// Encrypt seals the plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext || tag) as one blob. Empty input is rejected
// with common.ErrorEmptyInput.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", common.ErrorEmptyInput
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, nonceSize+len(sealed))
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. A malformed blob, a truncated
// blob or a failed authentication tag all yield common.ErrorCrypto; partial
// or forged plaintext is never returned.
func (e *Engine) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", common.ErrorCrypto)
	}
	if len(raw) < nonceSize+e.aead.Overhead() {
		return "", fmt.Errorf("%w: blob too short", common.ErrorCrypto)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", common.ErrorCrypto)
	}

	return string(plaintext), nil
}

// Hash returns a hex-encoded HMAC-SHA256 integrity tag over message, keyed
// with the engine key.
func (e *Engine) Hash(message string) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHash reports whether tag is the integrity tag of message. The
// comparison is constant-time.
func (e *Engine) VerifyHash(message, tag string) bool {
	want, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(message))
	return subtle.ConstantTimeCompare(mac.Sum(nil), want) == 1
}
