// Package secrets encrypts platform tokens at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// secretVersion is the version byte for the encrypted blob format.
	secretVersion = 0x01

	// nonceSize is the AES-GCM nonce size (12 bytes is standard)
	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

// keyInfo is the HKDF context string. Changing it changes every derived key.
const keyInfo = "adlink-core token encryption v1"

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrEmptySecret is returned when deriving a key from an empty secret.
	ErrEmptySecret = errors.New("encryption secret must not be empty")

	// ErrInvalidBlobSize is returned when the encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported secret blob version")

	// ErrDecryptionFailed is returned when decryption fails (wrong key, wrong
	// associated data or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt secret blob")
)

// SecretEncryptor handles AES-256-GCM encryption/decryption of secrets.
// The encrypted format is: version(1) || nonce(12) || ciphertext(N)
type SecretEncryptor struct {
	gcm cipher.AEAD
}

// NewSecretEncryptor creates a new encryptor with the given 32-byte key.
func NewSecretEncryptor(key []byte) (*SecretEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &SecretEncryptor{gcm: gcm}, nil
}

// NewSecretEncryptorFromSecret derives a 32-byte key from an operator-supplied
// secret of any length with HKDF-SHA256 and creates an encryptor with it.
func NewSecretEncryptorFromSecret(secret string) (*SecretEncryptor, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewSecretEncryptor(key)
}

// DeriveKey derives the AES-256 key for secret.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts the given value to a blob.
// The value is JSON-marshaled before encryption. aad is authenticated but not
// stored; Decrypt must be given the same aad.
func (e *SecretEncryptor) Encrypt(value any, aad []byte) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, plaintext, aad)

	// Build blob: version || nonce || ciphertext
	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = secretVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

// Decrypt decrypts a blob and unmarshals the result into the given value.
// The value should be a pointer to the target type.
func (e *SecretEncryptor) Decrypt(blob, aad []byte, value any) error {
	minSize := 1 + nonceSize + e.gcm.Overhead()
	if len(blob) < minSize {
		return ErrInvalidBlobSize
	}

	version := blob[0]
	if version != secretVersion {
		return fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, version)
	}

	nonce := blob[1 : 1+nonceSize]
	ciphertext := blob[1+nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("unmarshal decrypted value: %w", err)
	}

	return nil
}

// EncryptString encrypts a single token. Empty strings encrypt to nil so
// optional tokens (refresh tokens) map to NULL columns.
func (e *SecretEncryptor) EncryptString(s string, aad []byte) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return e.Encrypt(s, aad)
}

// DecryptString decrypts a blob produced by EncryptString. A nil blob yields "".
func (e *SecretEncryptor) DecryptString(blob, aad []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	var s string
	if err := e.Decrypt(blob, aad, &s); err != nil {
		return "", err
	}
	return s, nil
}

// AAD builds associated data binding a ciphertext to the record it belongs to,
// so a blob copied into another team's row fails to decrypt.
func AAD(parts ...string) []byte {
	var n int
	for _, p := range parts {
		n += len(p) + 1
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
		out = append(out, 0)
	}
	return out
}
