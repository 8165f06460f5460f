package crypto

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// CounterNonceSize is the size of the little-endian counter nonce used for
// handshake confirmation tags and post-handshake counter-mode traffic.
const CounterNonceSize = chacha20poly1305.NonceSize // 12 bytes

var (
	// ErrReplayDetected is returned when an incoming counter is not strictly
	// greater than the last accepted counter.
	ErrReplayDetected = errors.New("crypto: replayed or out-of-order counter")
	// ErrAuthFailed is returned when AEAD authentication fails.
	ErrAuthFailed = errors.New("crypto: authentication failed")
)

// CounterAEAD seals and opens ChaCha20-Poly1305 records under a 96-bit
// little-endian counter nonce, rejecting any counter that does not strictly
// increase across successive Open calls.
type CounterAEAD struct {
	key       []byte
	lastSeen  uint64
	haveSeen  bool
	sendCtr   uint64
	recvSaved bool
}

// NewCounterAEAD constructs a CounterAEAD bound to key (32 bytes).
func NewCounterAEAD(key []byte) (*CounterAEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("crypto: ChaCha20-Poly1305 key must be 32 bytes")
	}
	return &CounterAEAD{key: append([]byte(nil), key...)}, nil
}

func counterNonce(counter uint64) []byte {
	nonce := make([]byte, CounterNonceSize)
	binary.LittleEndian.PutUint64(nonce[0:8], counter)
	return nonce
}

// Seal encrypts plaintext under the next outgoing counter and returns the
// counter used together with the sealed ciphertext (including the Poly1305
// tag). The counter must be transmitted alongside the ciphertext.
func (c *CounterAEAD) Seal(plaintext, aad []byte) (counter uint64, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return 0, nil, err
	}
	counter = c.sendCtr
	nonce := counterNonce(counter)
	ciphertext = aead.Seal(nil, nonce, plaintext, aad)
	c.sendCtr++
	return counter, ciphertext, nil
}

// Open decrypts ciphertext sealed under the given counter, rejecting it with
// ErrReplayDetected unless counter is strictly greater than every counter
// previously accepted by this CounterAEAD.
func (c *CounterAEAD) Open(counter uint64, ciphertext, aad []byte) ([]byte, error) {
	if c.haveSeen && counter <= c.lastSeen {
		return nil, ErrReplayDetected
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}
	nonce := counterNonce(counter)
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	c.lastSeen = counter
	c.haveSeen = true
	return plaintext, nil
}

// SealAt seals a single message under an explicit counter without touching
// the internal send counter; it is used for one-shot handshake confirmation
// tags where the counter is always zero.
func SealAt(key []byte, counter uint64, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, counterNonce(counter), plaintext, aad), nil
}

// OpenAt opens a single message sealed under an explicit counter, with no
// replay state tracked.
func OpenAt(key []byte, counter uint64, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, counterNonce(counter), ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}
