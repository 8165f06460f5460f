package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// HKDFExtractSHA256 implements the HKDF-Extract step from RFC 5869 using
// SHA-256. It is used by the ECDHE+PSK handshake to combine the ephemeral
// Diffie-Hellman output with the long-lived pre-shared key.
func HKDFExtractSHA256(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpandSHA256 implements the HKDF-Expand step from RFC 5869 using
// SHA-256, producing length bytes of output keying material.
func HKDFExpandSHA256(prk, info []byte, length int) ([]byte, error) {
	r := hkdf.Expand(sha256.New, prk, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// HKDFSHA256 performs the combined Extract-then-Expand operation.
func HKDFSHA256(secret, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Argon2idParams bundles the cost parameters for the SPAKE2+ verifier
// derivation. Defaults follow the OWASP baseline for interactive login.
type Argon2idParams struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2idParams is tuned for an interactive authentication path:
// low enough to keep handshake latency in the tens of milliseconds, high
// enough to make offline dictionary attacks against a leaked verifier costly.
var DefaultArgon2idParams = Argon2idParams{
	TimeCost:    3,
	MemoryKiB:   64 * 1024,
	Parallelism: 4,
	KeyLen:      64, // w0s || w1s, 32 bytes each before scalar reduction
}

// DeriveW0W1Seed stretches a password into the wide bytes from which w0 and
// w1 are each reduced mod the group order via ReduceScalar.
func DeriveW0W1Seed(password, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey(password, salt, p.TimeCost, p.MemoryKiB, p.Parallelism, p.KeyLen)
}
