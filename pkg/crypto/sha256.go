package crypto

import (
	"crypto/sha256"
	"hash"
)

// SHA256 is a streaming SHA-256 engine. Feed it with Absorb in chunks of
// any size and read the digest with Finish. Finish leaves the state
// consumed; call Reset before hashing another message.
type SHA256 struct {
	h hash.Hash
}

// NewSHA256 returns a hasher in its initial state.
func NewSHA256() *SHA256 {
	return &SHA256{h: sha256.New()}
}

// Reset returns the hasher to its initial state.
func (s *SHA256) Reset() {
	s.h.Reset()
}

// Absorb feeds buf into the running hash.
func (s *SHA256) Absorb(buf []byte) {
	// hash.Hash never returns an error from Write
	s.h.Write(buf)
}

// Finish pads the message and returns the big-endian digest.
func (s *SHA256) Finish() [32]byte {
	var digest [32]byte
	s.h.Sum(digest[:0])
	return digest
}

// Sum256 hashes buf in one call.
func Sum256(buf []byte) [32]byte {
	h := NewSHA256()
	h.Absorb(buf)
	return h.Finish()
}
