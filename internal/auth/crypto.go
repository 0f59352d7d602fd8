package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrDecrypt = errors.New("failed to decrypt secret")

// SecretBox seals short secrets with AES-256-GCM.
// The key is the SHA-256 digest of the configured passphrase.
type SecretBox struct {
	aead cipher.AEAD
}

func NewSecretBox(passphrase string) (*SecretBox, error) {
	if passphrase == "" {
		return nil, errors.New("encryption key is empty")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext)
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *SecretBox) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	size := b.aead.NonceSize()
	if len(raw) <= size {
		return "", ErrDecrypt
	}
	plain, err := b.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
