// Package seedrand expands a seed into a deterministic stream of bytes.
//
// Every algorithm here is fully specified, so any implementation given the
// same seed produces the same stream. Nothing besides the seed is ever mixed
// in.
package seedrand

import (
	"crypto/sha256"
	"io"
	rand2 "math/rand/v2"
	"strings"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

type Algorithm string

const (
	// ChaCha8 is C2SP chacha8rand keyed with SHA-256(seed).
	ChaCha8 Algorithm = "chacha8"

	// SHA1PRNG is the classic SHA-1 based generator; see sha1prng.go.
	SHA1PRNG Algorithm = "sha1prng"

	Default = ChaCha8
)

func Algorithms() []Algorithm {
	return []Algorithm{ChaCha8, SHA1PRNG}
}

func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case "":
		return Default, nil
	case ChaCha8, SHA1PRNG:
		return alg, nil
	default:
		return "", keyerr.Errorf(keyerr.KindInvalidParameters, "unknown random source %q (want one of %v)", name, Algorithms())
	}
}

// New returns a reader producing the stream for seed. Reads never fail.
func New(alg Algorithm, seed []byte) (io.Reader, error) {
	switch alg {
	case ChaCha8:
		return NewChaCha8(seed), nil

	case SHA1PRNG:
		return NewSHA1PRNG(seed), nil

	default:
		return nil, keyerr.Errorf(keyerr.KindInvalidParameters, "unknown random source %q", string(alg))
	}
}

// NewChaCha8 returns a deterministic stream for seed using the ChaCha8 algorithm
// as a cryptographic key derivation function. The 32-byte key is the SHA-256
// digest of seed, so seeds of any length (including empty) can be used.
// This uses `math/rand/v2.NewChaCha8` which is [documented](https://pkg.go.dev/math/rand/v2#ChaCha8)
// to be cryptographically secure, and has [tests](https://cs.opensource.google/go/go/+/refs/tags/go1.23.2:src/internal/chacha8rand/rand_test.go;l=102)
// to ensure that its output is deterministic.
// The seed must be kept secret, as must everything derived from the stream.
func NewChaCha8(seed []byte) *rand2.ChaCha8 {
	key := sha256.Sum256(seed)
	defer clear(key[:])

	return rand2.NewChaCha8(key)
}
