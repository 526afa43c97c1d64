// Package aecrypt implements the authenticated encryption the UDP control
// plane uses to wrap PULL/PULL_RESPONSE payloads. Any standard
// authenticated stream cipher suffices per the daemon's design; this uses
// chacha20poly1305, already pulled in transitively by the rest of the
// dependency stack.
package aecrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/hahatianx/lumo/lumoerr"
	"golang.org/x/crypto/chacha20poly1305"
)

// ivSize is the nonce size chacha20poly1305 requires, and the size of the
// IV prefix every ciphertext on the wire carries.
const ivSize = chacha20poly1305.NonceSize // 12 bytes

// Cipher wraps a derived 32-byte AE key and encrypts/decrypts message
// payloads, prefixing each ciphertext with its IV.
type Cipher struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New builds a Cipher from a 32-byte key, typically sha256(token).
func New(key [32]byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "constructing AEAD cipher", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random IV and returns iv||ciphertext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "generating IV", err)
	}
	return c.sealWithIV(iv, plaintext), nil
}

// SealDeterministic encrypts plaintext with the PULL message's
// deterministic IV: sha256(challenge_be || "pull_iv") truncated to the
// cipher's nonce size.
func (c *Cipher) SealDeterministic(challenge uint64, plaintext []byte) []byte {
	return c.sealWithIV(PullIV(challenge), plaintext)
}

func (c *Cipher) sealWithIV(iv, plaintext []byte) []byte {
	out := make([]byte, 0, len(iv)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, iv...)
	return c.aead.Seal(out, iv, plaintext, nil)
}

// Open decrypts iv||ciphertext, validating the authentication tag.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	if len(data) < ivSize {
		return nil, lumoerr.E(lumoerr.Invalid, "ciphertext shorter than IV")
	}
	iv, ciphertext := data[:ivSize], data[ivSize:]
	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, lumoerr.E(lumoerr.Auth, "decrypting payload", err)
	}
	return plaintext, nil
}

// PullIV derives the deterministic IV used for a PULL message's
// challenge, per spec: sha256(challenge_be || "pull_iv") truncated to
// the AEAD's nonce size.
func PullIV(challenge uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], challenge)
	h := sha256.Sum256(append(buf[:], []byte("pull_iv")...))
	return h[:ivSize]
}
