package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// XNonceSize is the size of the random nonce used for post-handshake
// application traffic, large enough to make random-nonce collision
// negligible over the lifetime of a session.
const XNonceSize = chacha20poly1305.NonceSizeX // 24 bytes

// XAEAD seals and opens XChaCha20-Poly1305 records under a fresh random
// nonce per message. Unlike CounterAEAD it carries no sequencing state:
// callers that need replay protection for application data layer it on top
// (e.g. an application-level sequence number carried in the plaintext).
type XAEAD struct {
	key []byte
	rng io.Reader
}

// NewXAEAD constructs an XAEAD bound to key (32 bytes).
func NewXAEAD(key []byte) (*XAEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("crypto: XChaCha20-Poly1305 key must be 32 bytes")
	}
	return &XAEAD{key: append([]byte(nil), key...), rng: rand.Reader}, nil
}

// Seal encrypts plaintext under a freshly generated random nonce and returns
// nonce || ciphertext.
func (x *XAEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, XNonceSize)
	if _, err := io.ReadFull(x.rng, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open splits nonce || ciphertext and decrypts it.
func (x *XAEAD) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < XNonceSize {
		return nil, ErrAuthFailed
	}
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := sealed[:XNonceSize], sealed[XNonceSize:]
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}
