package crypto

import "golang.org/x/crypto/blake2b"

// TranscriptHashSize is the output size of the SPAKE2+ transcript hash.
const TranscriptHashSize = 64

// TranscriptHash hashes the SPAKE2+ protocol transcript TT with BLAKE2b-512.
func TranscriptHash(tt []byte) [TranscriptHashSize]byte {
	return blake2b.Sum512(tt)
}

// NewTranscriptHasher returns an incremental BLAKE2b-512 hash.Hash for
// callers that build up the transcript piecewise rather than in one buffer.
func NewTranscriptHasher() (blake2bHash, error) {
	return blake2b.New512(nil)
}

type blake2bHash = interface {
	Write(p []byte) (n int, err error)
	Sum(b []byte) []byte
	Reset()
	Size() int
	BlockSize() int
}
