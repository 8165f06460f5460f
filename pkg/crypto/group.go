// Package crypto provides the low-level primitives shared by the spake2p and
// ecdhepsk handshakes: Curve25519 group arithmetic, key derivation, transcript
// hashing, and AEAD sealing/opening.
package crypto

import (
	"crypto/sha512"
	"errors"
	"io"

	"filippo.io/edwards25519"
)

// ScalarSizeBytes is the size of a canonically-encoded edwards25519 scalar.
const ScalarSizeBytes = 32

// PointSizeBytes is the size of a compressed edwards25519 point.
const PointSizeBytes = 32

var (
	// ErrInvalidScalar is returned when a byte string does not decode to a
	// canonical scalar reduced mod the group order.
	ErrInvalidScalar = errors.New("crypto: invalid scalar encoding")
	// ErrInvalidPoint is returned when a byte string does not decode to a
	// valid point on the curve.
	ErrInvalidPoint = errors.New("crypto: invalid point encoding")
)

// M and N are independent generator points used by SPAKE2+ so that neither
// party can compute the other's blinding contribution without knowing the
// discrete log relating M or N to the base point. They are derived by hashing
// fixed domain-separated seeds into scalars and multiplying the Edwards25519
// base point, which guarantees a valid point without needing to verify an
// arbitrary encoded point lies on the curve.
var (
	pointM = baseMultHash("tui-server SPAKE2+ generator M")
	pointN = baseMultHash("tui-server SPAKE2+ generator N")
)

func baseMultHash(seed string) *edwards25519.Point {
	h := sha512.Sum512([]byte(seed))
	s, err := edwards25519.NewScalar().SetUniformBytes(h[:])
	if err != nil {
		panic(err) // SetUniformBytes only fails on wrong-length input
	}
	return edwards25519.NewIdentityPoint().ScalarBaseMult(s)
}

// GeneratorM returns the SPAKE2+ prover-side blinding generator M.
func GeneratorM() *edwards25519.Point { return pointM }

// GeneratorN returns the SPAKE2+ verifier-side blinding generator N.
func GeneratorN() *edwards25519.Point { return pointN }

// RandomScalar returns a uniformly random non-zero scalar mod the group order.
func RandomScalar(r io.Reader) (*edwards25519.Scalar, error) {
	var buf [64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	return edwards25519.NewScalar().SetUniformBytes(buf[:])
}

// DecodeScalar parses a canonical 32-byte little-endian scalar encoding.
func DecodeScalar(b []byte) (*edwards25519.Scalar, error) {
	if len(b) != ScalarSizeBytes {
		return nil, ErrInvalidScalar
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return s, nil
}

// ReduceScalar maps an arbitrary-length byte string onto a scalar mod the
// group order via wide reduction, used to turn Argon2id/HKDF output into a
// group element (w0, w1).
func ReduceScalar(wide []byte) (*edwards25519.Scalar, error) {
	var buf [64]byte
	if len(wide) > 64 {
		return nil, errors.New("crypto: wide reduction input exceeds 64 bytes")
	}
	copy(buf[:], wide)
	return edwards25519.NewScalar().SetUniformBytes(buf[:])
}

// DecodePoint parses a compressed 32-byte point encoding.
func DecodePoint(b []byte) (*edwards25519.Point, error) {
	if len(b) != PointSizeBytes {
		return nil, ErrInvalidPoint
	}
	p, err := edwards25519.NewIdentityPoint().SetBytes(b)
	if err != nil {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

// ScalarBaseMult returns s*B where B is the Edwards25519 base point.
func ScalarBaseMult(s *edwards25519.Scalar) *edwards25519.Point {
	return edwards25519.NewIdentityPoint().ScalarBaseMult(s)
}

// ScalarMult returns s*P.
func ScalarMult(s *edwards25519.Scalar, p *edwards25519.Point) *edwards25519.Point {
	return edwards25519.NewIdentityPoint().ScalarMult(s, p)
}

// PointAdd returns p1+p2.
func PointAdd(p1, p2 *edwards25519.Point) *edwards25519.Point {
	return edwards25519.NewIdentityPoint().Add(p1, p2)
}

// PointSub returns p1-p2.
func PointSub(p1, p2 *edwards25519.Point) *edwards25519.Point {
	return edwards25519.NewIdentityPoint().Subtract(p1, p2)
}
