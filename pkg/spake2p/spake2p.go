// Package spake2p implements the SPAKE2+ Password-Authenticated Key Exchange
// protocol over Curve25519 (Edwards25519 group arithmetic).
//
// SPAKE2+ is an augmented PAKE protocol where only one party (the Prover)
// knows the password directly, while the other party (the Verifier) stores
// a registration record derived from the password via Argon2id.
//
// Protocol flow:
//
//	Prover (client)                     Verifier (server)
//	----------------                    -----------------
//	NewProver(w0, w1)                   NewVerifier(w0, L)
//	                                    Y = GenerateShare()
//	X = GenerateShare() ----X---->      ProcessPeerShare(X)
//	                    <---Y----
//	ProcessPeerShare(Y)                 confirmV = Confirmation()
//	                    <-confirmV--
//	VerifyPeerConfirmation(confirmV)
//	confirmP = Confirmation() --confirmP-->
//	                                    VerifyPeerConfirmation(confirmP)
//	Ke = SharedSecret()                 Ke = SharedSecret()
package spake2p

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"filippo.io/edwards25519"

	secrypto "github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/stepcheck"
)

// Protocol constants.
const (
	// ScalarSizeBytes is the size of a Curve25519 scalar (w0, w1, x, y).
	ScalarSizeBytes = secrypto.ScalarSizeBytes
	// PointSizeBytes is the size of a compressed Curve25519 point (X, Y, L).
	PointSizeBytes = secrypto.PointSizeBytes
	// KeySizeBytes is the size of each derived key (Ka, Ke, KcA, KcB).
	KeySizeBytes = 32
)

// Role identifies which side of the exchange a SPAKE2P instance plays.
type Role int

const (
	// RoleProver is the party that knows the password directly.
	RoleProver Role = iota
	// RoleVerifier is the party holding the (w0, L) registration record.
	RoleVerifier
)

type state int

const (
	stateInit state = iota
	stateShareGenerated
	stateSharedSecretComputed
	stateConfirmed
)

// Errors returned by SPAKE2P operations.
var (
	ErrInvalidW0Size      = errors.New("spake2p: w0 must be 32 bytes")
	ErrInvalidW1Size      = errors.New("spake2p: w1 must be 32 bytes")
	ErrInvalidLSize       = errors.New("spake2p: L must be 32 bytes")
	ErrInvalidShareSize   = errors.New("spake2p: share must be 32 bytes")
	ErrInvalidPoint       = errors.New("spake2p: point is not a valid curve point")
	ErrInvalidScalar      = errors.New("spake2p: scalar is not canonically encoded")
	ErrInvalidState       = errors.New("spake2p: operation attempted out of order")
	ErrConfirmationFailed = errors.New("spake2p: key confirmation failed")
)

// SPAKE2P holds the state of one side of a single SPAKE2+ exchange. It is
// not safe for concurrent use.
type SPAKE2P struct {
	role       Role
	context    []byte
	idProver   []byte
	idVerifier []byte

	w0 *edwards25519.Scalar // shared secret scalar, both roles
	w1 *edwards25519.Scalar // prover only
	L  *edwards25519.Point  // verifier only: L = w1*B

	myRandom  *edwards25519.Scalar // x (prover) or y (verifier)
	myShare   []byte               // X (prover) or Y (verifier), encoded
	peerShare []byte               // Y (prover) or X (verifier), encoded
	Z         []byte               // shared DH value, encoded
	V         []byte               // shared verification value, encoded

	ka, ke, kcA, kcB []byte

	steps *stepcheck.StepChecker[state]
	rand  io.Reader
}

// NewProver creates a SPAKE2+ instance as the prover (the party that knows
// the password). context binds the exchange to a specific session (e.g. a
// hash of prior handshake parameters); idProver and idVerifier may be empty.
// w0 and w1 are the two 32-byte scalars derived from the password via
// crypto.DeriveW0W1Seed + crypto.ReduceScalar.
func NewProver(context, idProver, idVerifier, w0, w1 []byte) (*SPAKE2P, error) {
	if len(w0) != ScalarSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(w1) != ScalarSizeBytes {
		return nil, ErrInvalidW1Size
	}
	w0s, err := secrypto.DecodeScalar(w0)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	w1s, err := secrypto.DecodeScalar(w1)
	if err != nil {
		return nil, ErrInvalidScalar
	}

	return &SPAKE2P{
		role:       RoleProver,
		context:    cloneBytes(context),
		idProver:   cloneBytes(idProver),
		idVerifier: cloneBytes(idVerifier),
		w0:         w0s,
		w1:         w1s,
		steps:      stepcheck.New(stateInit),
		rand:       rand.Reader,
	}, nil
}

// NewVerifier creates a SPAKE2+ instance as the verifier (the party holding
// the registration record). l is the 32-byte encoded point w1*B computed at
// registration time.
func NewVerifier(context, idProver, idVerifier, w0, l []byte) (*SPAKE2P, error) {
	if len(w0) != ScalarSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(l) != PointSizeBytes {
		return nil, ErrInvalidLSize
	}
	w0s, err := secrypto.DecodeScalar(w0)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	lPoint, err := secrypto.DecodePoint(l)
	if err != nil {
		return nil, ErrInvalidPoint
	}

	return &SPAKE2P{
		role:       RoleVerifier,
		context:    cloneBytes(context),
		idProver:   cloneBytes(idProver),
		idVerifier: cloneBytes(idVerifier),
		w0:         w0s,
		L:          lPoint,
		steps:      stepcheck.New(stateInit),
		rand:       rand.Reader,
	}, nil
}

// DeriveL computes L = w1*B, the registration record stored by the
// verifier in place of the password.
func DeriveL(w1 []byte) ([]byte, error) {
	if len(w1) != ScalarSizeBytes {
		return nil, ErrInvalidW1Size
	}
	w1s, err := secrypto.DecodeScalar(w1)
	if err != nil {
		return nil, ErrInvalidScalar
	}
	return secrypto.ScalarBaseMult(w1s).Bytes(), nil
}

// GenerateShare generates and returns this party's public share.
// Prover:   X = x*B + w0*M
// Verifier: Y = y*B + w0*N
func (s *SPAKE2P) GenerateShare() (share []byte, err error) {
	marker, err := s.steps.CheckStep(stateInit, stateShareGenerated)
	if err != nil {
		return nil, ErrInvalidState
	}
	defer marker.Finish(&err)

	myRandom, err := secrypto.RandomScalar(s.rand)
	if err != nil {
		return nil, err
	}
	s.myRandom = myRandom

	generator := secrypto.GeneratorN()
	if s.role == RoleProver {
		generator = secrypto.GeneratorM()
	}

	point := secrypto.PointAdd(secrypto.ScalarBaseMult(myRandom), secrypto.ScalarMult(s.w0, generator))
	s.myShare = point.Bytes()
	return cloneBytes(s.myShare), nil
}

// ProcessPeerShare validates the peer's public share and computes Z, V, and
// the derived key schedule.
func (s *SPAKE2P) ProcessPeerShare(peerShare []byte) (err error) {
	marker, err := s.steps.CheckStep(stateShareGenerated, stateSharedSecretComputed)
	if err != nil {
		return ErrInvalidState
	}
	defer marker.Finish(&err)

	if len(peerShare) != PointSizeBytes {
		return ErrInvalidShareSize
	}
	peerPoint, err := secrypto.DecodePoint(peerShare)
	if err != nil {
		return ErrInvalidPoint
	}
	s.peerShare = cloneBytes(peerShare)

	var Z, V *edwards25519.Point
	if s.role == RoleProver {
		// Z = x*(Y - w0*N), V = w1*(Y - w0*N)
		blinded := secrypto.PointSub(peerPoint, secrypto.ScalarMult(s.w0, secrypto.GeneratorN()))
		Z = secrypto.ScalarMult(s.myRandom, blinded)
		V = secrypto.ScalarMult(s.w1, blinded)
	} else {
		// Z = y*(X - w0*M), V = y*L
		blinded := secrypto.PointSub(peerPoint, secrypto.ScalarMult(s.w0, secrypto.GeneratorM()))
		Z = secrypto.ScalarMult(s.myRandom, blinded)
		V = secrypto.ScalarMult(s.myRandom, s.L)
	}
	s.Z = Z.Bytes()
	s.V = V.Bytes()

	s.deriveKeys()
	return nil
}

// deriveKeys derives ka/ke/kcA/kcB from the protocol transcript TT, using
// BLAKE2b-512 as the transcript hash and HKDF-Expand (no Extract step, since
// the transcript hash output is already uniformly distributed) to split the
// authentication key into the two confirmation keys.
func (s *SPAKE2P) deriveKeys() {
	tt := s.buildTranscript()
	kae := secrypto.TranscriptHash(tt)

	s.ka = cloneBytes(kae[:32])
	s.ke = cloneBytes(kae[32:])

	kcab, err := secrypto.HKDFExpandSHA256(s.ka, []byte("ConfirmationKeys"), 2*KeySizeBytes)
	if err != nil {
		// HKDFExpandSHA256 only fails if the requested length exceeds the
		// HKDF limit (255*hash size), which 64 bytes never does.
		panic(err)
	}
	s.kcA = kcab[:KeySizeBytes]
	s.kcB = kcab[KeySizeBytes:]
}

// buildTranscript assembles TT = len||Context || len||idProver ||
// len||idVerifier || len||M || len||N || len||X || len||Y || len||Z ||
// len||V || len||w0, each length-prefixed with an 8-byte little-endian
// length, mirroring RFC 9383's transcript construction.
func (s *SPAKE2P) buildTranscript() []byte {
	var X, Y []byte
	if s.role == RoleProver {
		X, Y = s.myShare, s.peerShare
	} else {
		X, Y = s.peerShare, s.myShare
	}

	w0Bytes := s.w0.Bytes()
	mBytes := secrypto.GeneratorM().Bytes()
	nBytes := secrypto.GeneratorN().Bytes()

	var tt []byte
	for _, part := range [][]byte{s.context, s.idProver, s.idVerifier, mBytes, nBytes, X, Y, s.Z, s.V, w0Bytes} {
		tt = appendWithLen64(tt, part)
	}
	return tt
}

func appendWithLen64(dst, data []byte) []byte {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, data...)
	return dst
}

// Confirmation returns this party's key confirmation tag: a ChaCha20-Poly1305
// seal of an empty plaintext, authenticating the peer's share under this
// party's confirmation key.
// Prover:   seal(KcA, peerShare=Y)
// Verifier: seal(KcB, peerShare=X)
func (s *SPAKE2P) Confirmation() ([]byte, error) {
	cur, err := s.steps.CurrentStep()
	if err != nil || (cur != stateSharedSecretComputed && cur != stateConfirmed) {
		return nil, ErrInvalidState
	}

	key := s.kcB
	if s.role == RoleProver {
		key = s.kcA
	}
	return secrypto.SealAt(key, 0, nil, s.peerShare)
}

// VerifyPeerConfirmation validates the peer's key confirmation tag.
func (s *SPAKE2P) VerifyPeerConfirmation(peerConfirm []byte) (err error) {
	cur, err := s.steps.CurrentStep()
	if err != nil || (cur != stateSharedSecretComputed && cur != stateConfirmed) {
		return ErrInvalidState
	}

	key := s.kcA
	if s.role == RoleProver {
		key = s.kcB
	}
	if _, err := secrypto.OpenAt(key, 0, peerConfirm, s.myShare); err != nil {
		return ErrConfirmationFailed
	}

	if cur == stateConfirmed {
		return nil
	}
	marker, stepErr := s.steps.CheckStep(stateSharedSecretComputed, stateConfirmed)
	if stepErr != nil {
		return ErrInvalidState
	}
	marker.Finish(&err)
	return nil
}

// SharedSecret returns the established shared secret Ke. Callers should only
// rely on this after VerifyPeerConfirmation has succeeded.
func (s *SPAKE2P) SharedSecret() []byte {
	return cloneBytes(s.ke)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// SetRandom overrides the random source; intended for deterministic tests.
func (s *SPAKE2P) SetRandom(r io.Reader) {
	s.rand = r
}
