package blobstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted document envelope:
// magic(8) + salt(16) + nonce(12) + ciphertext + auth_tag(16).
// The key is derived with PBKDF2-SHA256 at 100k rounds.
const (
	encryptionMagic = "GCM3NCR0"
	saltLen         = 16
	nonceLen        = 12
	pbkdf2Rounds    = 100000
)

var ErrNotEncrypted = errors.New("data does not carry the encryption envelope")

// IsEncrypted reports whether data starts with the envelope magic.
func IsEncrypted(data []byte) bool {
	return len(data) >= len(encryptionMagic) && string(data[:len(encryptionMagic)]) == encryptionMagic
}

// Encrypt seals plaintext under a password-derived AES-256-GCM key.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encryptionMagic)+saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, encryptionMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, ErrNotEncrypted
	}
	if len(data) < len(encryptionMagic)+saltLen+nonceLen+16 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	salt := data[8:24]
	nonce := data[24:36]
	sealed := data[36:]

	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm decryption failed: %w", err)
	}
	return plaintext, nil
}

func gcmFor(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
