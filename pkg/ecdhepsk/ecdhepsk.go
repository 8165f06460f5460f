// Package ecdhepsk implements the ECDHE+PSK session resumption handshake:
// an X25519 ephemeral Diffie-Hellman exchange combined with a pre-shared key
// left over from a prior SPAKE2+ session, so that a returning client can
// re-establish a secure session without re-running the full password
// exchange.
//
// Protocol flow:
//
//	Client                              Server
//	------                              ------
//	NewClient(psk, sessionID)           NewServer(psk, sessionID)
//	                                    Ey = GenerateShare()
//	Ex = GenerateShare() ---Ex-->       ProcessPeerShare(Ex)
//	                     <---Ey---
//	ProcessPeerShare(Ey)
//	confirmS <- Confirmation() (server) --confirmS-->
//	VerifyPeerConfirmation(confirmS)
//	confirmC <- Confirmation() (client) --confirmC-->
//	                                     VerifyPeerConfirmation(confirmC)
//	ClientKey()/ServerKey()             ClientKey()/ServerKey()
//
// Unlike SPAKE2+, the combining step here is a full HKDF-Extract over
// Z||psk, not HKDF-Expand alone: the ephemeral DH output Z is uniformly
// random but the PSK is a fixed, possibly-reused value, so Extract is used
// to re-randomize the combined secret before Expand derives the traffic and
// confirmation keys.
package ecdhepsk

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"

	secrypto "github.com/tui-server/secure-session/pkg/crypto"
	"github.com/tui-server/secure-session/pkg/stepcheck"
)

// PublicKeySizeBytes is the size of an X25519 public key.
const PublicKeySizeBytes = 32

// PSKSizeBytes is the required size of the pre-shared key carried over from
// the prior SPAKE2+ session (SharedSecret's output size).
const PSKSizeBytes = 32

// KeySizeBytes is the size of each derived traffic/confirmation key.
const KeySizeBytes = 32

type role int

const (
	roleClient role = iota
	roleServer
)

type state int

const (
	stateInit state = iota
	stateShareGenerated
	stateSharedSecretComputed
	stateConfirmed
)

// Errors returned by ECDHEPSK operations.
var (
	ErrInvalidPSKSize     = errors.New("ecdhepsk: psk must be 32 bytes")
	ErrInvalidShareSize   = errors.New("ecdhepsk: share must be 32 bytes")
	ErrInvalidState       = errors.New("ecdhepsk: operation attempted out of order")
	ErrConfirmationFailed = errors.New("ecdhepsk: key confirmation failed")
)

// ECDHEPSK holds the state of one side of a single resumption handshake. It
// is not safe for concurrent use.
type ECDHEPSK struct {
	role      role
	psk       []byte
	sessionID []byte

	privateKey []byte
	myShare    []byte
	peerShare  []byte

	clientKey, serverKey, confirmKey []byte

	steps *stepcheck.StepChecker[state]
	rand  io.Reader
}

func newInstance(r role, psk, sessionID []byte) (*ECDHEPSK, error) {
	if len(psk) != PSKSizeBytes {
		return nil, ErrInvalidPSKSize
	}
	return &ECDHEPSK{
		role:      r,
		psk:       cloneBytes(psk),
		sessionID: cloneBytes(sessionID),
		steps:     stepcheck.New(stateInit),
		rand:      rand.Reader,
	}, nil
}

// NewClient creates an ECDHEPSK instance as the resuming client.
func NewClient(psk, sessionID []byte) (*ECDHEPSK, error) {
	return newInstance(roleClient, psk, sessionID)
}

// NewServer creates an ECDHEPSK instance as the server accepting resumption.
func NewServer(psk, sessionID []byte) (*ECDHEPSK, error) {
	return newInstance(roleServer, psk, sessionID)
}

// GenerateShare generates this party's ephemeral X25519 key pair and
// returns the public key to send to the peer.
func (e *ECDHEPSK) GenerateShare() (share []byte, err error) {
	marker, err := e.steps.CheckStep(stateInit, stateShareGenerated)
	if err != nil {
		return nil, ErrInvalidState
	}
	defer marker.Finish(&err)

	priv := make([]byte, 32)
	if _, err := io.ReadFull(e.rand, priv); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	e.privateKey = priv
	e.myShare = pub
	return cloneBytes(pub), nil
}

// ProcessPeerShare computes the ephemeral Diffie-Hellman output Z, combines
// it with the pre-shared key, and derives the client/server/confirmation
// keys via HKDF-Extract(salt=TT, ikm=Z||psk) followed by HKDF-Expand.
func (e *ECDHEPSK) ProcessPeerShare(peerShare []byte) (err error) {
	marker, err := e.steps.CheckStep(stateShareGenerated, stateSharedSecretComputed)
	if err != nil {
		return ErrInvalidState
	}
	defer marker.Finish(&err)

	if len(peerShare) != PublicKeySizeBytes {
		return ErrInvalidShareSize
	}
	e.peerShare = cloneBytes(peerShare)

	z, err := curve25519.X25519(e.privateKey, peerShare)
	if err != nil {
		return err
	}

	tt := e.buildTranscript()
	ikm := append(append([]byte(nil), z...), e.psk...)
	prk := secrypto.HKDFExtractSHA256(tt, ikm)

	clientKey, err := secrypto.HKDFExpandSHA256(prk, []byte("ECDHEPSK-ClientKey"), KeySizeBytes)
	if err != nil {
		return err
	}
	serverKey, err := secrypto.HKDFExpandSHA256(prk, []byte("ECDHEPSK-ServerKey"), KeySizeBytes)
	if err != nil {
		return err
	}
	confirmKey, err := secrypto.HKDFExpandSHA256(prk, []byte("ECDHEPSK-ConfirmKey"), KeySizeBytes)
	if err != nil {
		return err
	}

	e.clientKey, e.serverKey, e.confirmKey = clientKey, serverKey, confirmKey
	return nil
}

// buildTranscript builds TT = len||sessionID || len||clientShare ||
// len||serverShare, length-prefixed with 8-byte little-endian lengths.
func (e *ECDHEPSK) buildTranscript() []byte {
	var clientShare, serverShare []byte
	if e.role == roleClient {
		clientShare, serverShare = e.myShare, e.peerShare
	} else {
		clientShare, serverShare = e.peerShare, e.myShare
	}

	var tt []byte
	for _, part := range [][]byte{e.sessionID, clientShare, serverShare} {
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

// Confirmation returns this party's key confirmation tag.
func (e *ECDHEPSK) Confirmation() ([]byte, error) {
	cur, err := e.steps.CurrentStep()
	if err != nil || (cur != stateSharedSecretComputed && cur != stateConfirmed) {
		return nil, ErrInvalidState
	}
	label := []byte("server")
	if e.role == roleClient {
		label = []byte("client")
	}
	return secrypto.SealAt(e.confirmKey, 0, nil, label)
}

// VerifyPeerConfirmation validates the peer's key confirmation tag.
func (e *ECDHEPSK) VerifyPeerConfirmation(peerConfirm []byte) (err error) {
	cur, err := e.steps.CurrentStep()
	if err != nil || (cur != stateSharedSecretComputed && cur != stateConfirmed) {
		return ErrInvalidState
	}
	peerLabel := []byte("client")
	if e.role == roleClient {
		peerLabel = []byte("server")
	}
	if _, err := secrypto.OpenAt(e.confirmKey, 0, peerConfirm, peerLabel); err != nil {
		return ErrConfirmationFailed
	}

	if cur == stateConfirmed {
		return nil
	}
	marker, stepErr := e.steps.CheckStep(stateSharedSecretComputed, stateConfirmed)
	if stepErr != nil {
		return ErrInvalidState
	}
	marker.Finish(&err)
	return nil
}

// ClientKey returns the derived client->server traffic key.
func (e *ECDHEPSK) ClientKey() []byte { return cloneBytes(e.clientKey) }

// ServerKey returns the derived server->client traffic key.
func (e *ECDHEPSK) ServerKey() []byte { return cloneBytes(e.serverKey) }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// SetRandom overrides the random source; intended for deterministic tests.
func (e *ECDHEPSK) SetRandom(r io.Reader) {
	e.rand = r
}
