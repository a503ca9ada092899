package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// BootstrapKey is the fixed shared secret every client knows. It protects
// nothing but the very first login frame of a session: the login carries a
// fresh session key, and all later traffic uses a cipher keyed with that.
// A compromised bootstrap key therefore exposes at most one session's
// login exchange, not the whole deployment's traffic.
const BootstrapKey = "winmon_bootstrap_key"

// Cipher provides authenticated symmetric encryption of frame payloads.
//
// The key string (bootstrap constant or per-session key) is stretched to
// 256 bits with SHA-256 and used with AES-GCM. Encrypt output is base64
// over nonce||ciphertext, ready to sit between the frame tags.
//
// A Cipher is immutable after construction and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher keyed with the given key string.
func NewCipher(key string) (*Cipher, error) {
	if key == "" {
		return nil, ErrKeySize
	}

	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCipher, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCipher, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts a plaintext payload and returns it base64-encoded.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %w", ErrCipher, err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails if the input is not valid base64,
// is too short to carry a nonce, or fails authentication (wrong key or
// tampered ciphertext).
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %w", ErrCipher, err)
	}

	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCipher)
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCipher, err)
	}

	return string(plaintext), nil
}
