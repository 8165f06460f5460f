// Package handshaketlv implements the flat type-length-value encoding used
// to frame handshake messages exchanged by the spake2p and ecdhepsk
// protocols.
//
// Each element is encoded as a (type, length, value) triple: a single type
// byte, a 4-byte little-endian length, and the value bytes. Elements are
// serialized in ascending type order so that two messages carrying the same
// elements always produce identical bytes. Type bytes above the highest
// known ElementType are skipped on parse rather than treated as an error,
// so that a future element can be added without breaking older peers.
package handshaketlv

import (
	"encoding/binary"
	"errors"
	"sort"
)

// ElementType identifies a single handshake message element.
type ElementType uint8

const (
	// ProtocolType identifies which handshake protocol (spake2p or
	// ecdhepsk) and step produced this message.
	ProtocolType ElementType = 0
	// CipherMessage carries the protocol-specific payload bytes: a share,
	// a confirmation tag, or an encrypted application record.
	CipherMessage ElementType = 1
	// KeyIndex identifies which pre-shared key or verifier record the
	// sender used, letting the receiver look up the matching secret.
	KeyIndex ElementType = 2

	maxKnownElementType = KeyIndex
)

// ErrMalformed is returned when a byte string is truncated mid-element.
var ErrMalformed = errors.New("handshaketlv: malformed message")

const (
	typeSize   = 1
	lengthSize = 4
)

// Message is an ordered set of handshake elements.
type Message map[ElementType][]byte

// New builds a Message from explicit element values.
func New() Message {
	return make(Message)
}

// Set stores value under type, overwriting any previous value.
func (m Message) Set(t ElementType, value []byte) {
	m[t] = value
}

// Get returns the value stored under type and whether it was present.
func (m Message) Get(t ElementType) ([]byte, bool) {
	v, ok := m[t]
	return v, ok
}

// Serialize encodes the message as ascending-type-ordered (type, length,
// value) triples.
func (m Message) Serialize() []byte {
	types := make([]ElementType, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	total := 0
	for _, t := range types {
		total += typeSize + lengthSize + len(m[t])
	}

	out := make([]byte, 0, total)
	for _, t := range types {
		value := m[t]
		out = append(out, byte(t))
		var lenBuf [lengthSize]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
		out = append(out, lenBuf[:]...)
		out = append(out, value...)
	}
	return out
}

// Parse decodes a serialized message, skipping any element whose type byte
// exceeds the highest known ElementType.
func Parse(data []byte) (Message, error) {
	m := New()
	offset := 0
	for offset < len(data) {
		if offset+typeSize+lengthSize > len(data) {
			return nil, ErrMalformed
		}
		t := ElementType(data[offset])
		offset += typeSize

		length := binary.LittleEndian.Uint32(data[offset : offset+lengthSize])
		offset += lengthSize

		end := offset + int(length)
		if end < offset || end > len(data) {
			return nil, ErrMalformed
		}

		if t > maxKnownElementType {
			offset = end
			continue
		}

		value := make([]byte, length)
		copy(value, data[offset:end])
		m[t] = value
		offset = end
	}
	return m, nil
}
