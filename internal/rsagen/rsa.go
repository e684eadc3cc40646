package rsagen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

// millerRabinRounds is passed to big.Int.ProbablyPrime, which also runs a
// Baillie-PSW test. Both are deterministic for a given candidate.
const millerRabinRounds = 20

var (
	bigOne = big.NewInt(1)
	bigE   = big.NewInt(policy.PublicExponent)
)

// GenerateKey builds an RSA key pair using random as the only source of
// candidate material. The procedure is fixed, so the same stream always
// yields the same key:
//
//   - e is always 65537
//   - p has (bits+1)/2 bits and q has the remaining bits; p is drawn first
//   - see randomPrime for how candidates are read from the stream
//   - pairs with p == q or a modulus of the wrong length are discarded
//   - d = e^-1 mod lcm(p-1, q-1)
func GenerateKey(ctx context.Context, random io.Reader, bits int) (*KeyPair, error) {
	if bits < policy.MinKeySize || bits > policy.MaxKeySize {
		return nil, keyerr.Errorf(keyerr.KindInvalidKeySize, "key size %d is not supported (must be between %d and %d bits)", bits, policy.MinKeySize, policy.MaxKeySize)
	}

	pBits := (bits + 1) / 2
	qBits := bits - pBits

	for {
		p, err := randomPrime(ctx, random, pBits)
		if err != nil {
			return nil, err
		}

		q, err := randomPrime(ctx, random, qBits)
		if err != nil {
			return nil, err
		}

		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		pMinus1 := new(big.Int).Sub(p, bigOne)
		qMinus1 := new(big.Int).Sub(q, bigOne)

		gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
		lambda := new(big.Int).Mul(pMinus1, qMinus1)
		lambda.Quo(lambda, gcd)

		d := new(big.Int).ModInverse(bigE, lambda)
		if d == nil {
			// unreachable while randomPrime rejects p ≡ 1 (mod e), since e is prime
			continue
		}

		return newKeyPair(n, d, p, q), nil
	}
}

// randomPrime reads ceil(bits/8) bytes per candidate, clears everything
// above the requested length, sets the two top bits so that the product of
// two such primes has exactly the sum of their lengths, and sets the low bit.
// Candidates congruent to 1 mod e are skipped so that e stays invertible.
func randomPrime(ctx context.Context, random io.Reader, bits int) (*big.Int, error) {
	if bits < 2 {
		return nil, keyerr.Errorf(keyerr.KindInvalidKeySize, "prime size must be at least 2 bits, got %d", bits)
	}

	b := uint(bits % 8)
	if b == 0 {
		b = 8
	}

	buf := make([]byte, (bits+7)/8)
	defer clear(buf)

	p := new(big.Int)
	rem := new(big.Int)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("prime search aborted: %w", err)
		}

		if _, err := io.ReadFull(random, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, keyerr.Wrap(keyerr.KindInvalidKeySize, err, "random source exhausted during prime search")
			}

			return nil, fmt.Errorf("failed to read from random source: %w", err)
		}

		buf[0] &= uint8(int(1<<b) - 1)

		if b >= 2 {
			buf[0] |= 3 << (b - 2)
		} else {
			buf[0] |= 1
			if len(buf) > 1 {
				buf[1] |= 0x80
			}
		}

		buf[len(buf)-1] |= 1

		p.SetBytes(buf)

		if rem.Mod(p, bigE).Cmp(bigOne) == 0 {
			continue
		}

		if p.ProbablyPrime(millerRabinRounds) {
			return p, nil
		}
	}
}
