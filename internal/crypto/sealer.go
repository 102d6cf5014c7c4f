// Package crypto seals secrets stored at rest with AES-256-GCM. It is used for
// organization notification URLs, which embed webhook tokens for chat services.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when a sealed value is not valid base64 or too short.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when authentication fails, usually a wrong key.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrNoKey is returned by ParseKey for an empty key.
	ErrNoKey = errors.New("crypto: ENCRYPTION_KEY is not set")
)

// keySalt is the fixed PBKDF2 salt for passphrase keys. Deployments that need a
// per-installation salt should supply a raw 32-byte key instead.
var keySalt = []byte("lanehq/notification-url/v1")

const pbkdf2Iterations = 100000

// Sealer encrypts and decrypts secrets.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte key. The key is not retained.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// ParseKey builds a sealer from the ENCRYPTION_KEY value: either the URL-safe
// base64 encoding of 32 random bytes (see GenerateKey) or a passphrase, which is
// stretched with PBKDF2-SHA256.
func ParseKey(value string) (*Sealer, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNoKey
	}
	if raw, err := base64.URLEncoding.DecodeString(value); err == nil && len(raw) == 32 {
		return NewSealer(raw)
	}
	return NewSealer(pbkdf2.Key([]byte(value), keySalt, pbkdf2Iterations, 32, sha256.New))
}

// Seal encrypts plaintext and returns URL-safe base64 of nonce||ciphertext.
// The empty string seals to the empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrCiphertextCorrupted
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey returns a new random key encoded for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}
