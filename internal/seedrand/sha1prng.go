package seedrand

import (
	"crypto/sha1"
	"io"
)

// SHA1PRNGReader implements the SHA1PRNG construction:
//
//	state  = SHA1(seed)
//	block  = SHA1(state)
//	state  = state + block + 1   (bytewise from index 0, see below)
//
// The addition treats every byte as signed (-128..127) and carries with an
// arithmetic shift, so the carry into the next byte is -1, 0 or 1. This is
// the JDK sun.security.provider.SecureRandom update rule; the stream matches
// SecureRandom.getInstance("SHA1PRNG") seeded with the same bytes.
// If the addition leaves state unchanged, state[0] is incremented. Blocks
// are served in order and the unread tail of a block is used before a new
// block is computed.
type SHA1PRNGReader struct {
	state     [sha1.Size]byte
	remainder [sha1.Size]byte
	remCount  int
}

var _ io.Reader = &SHA1PRNGReader{}

func NewSHA1PRNG(seed []byte) *SHA1PRNGReader {
	return &SHA1PRNGReader{
		state:    sha1.Sum(seed),
		remCount: sha1.Size,
	}
}

func (r *SHA1PRNGReader) Read(p []byte) (int, error) {
	n := 0

	for n < len(p) {
		if r.remCount == sha1.Size {
			r.nextBlock()
		}

		copied := copy(p[n:], r.remainder[r.remCount:])
		clear(r.remainder[r.remCount : r.remCount+copied])

		r.remCount += copied
		n += copied
	}

	return n, nil
}

func (r *SHA1PRNGReader) nextBlock() {
	r.remainder = sha1.Sum(r.state[:])
	r.remCount = 0

	last := 1
	changed := false

	for i := range r.state {
		v := int(int8(r.state[i])) + int(int8(r.remainder[i])) + last
		t := byte(v)

		changed = changed || r.state[i] != t
		r.state[i] = t
		last = v >> 8
	}

	if !changed {
		r.state[0]++
	}
}

// Destroy zeroes the generator state.
func (r *SHA1PRNGReader) Destroy() {
	clear(r.state[:])
	clear(r.remainder[:])
	r.remCount = sha1.Size
}
