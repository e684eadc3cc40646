package pbe

import (
	"crypto/sha1"
	"fmt"
	"math/big"
	"unicode/utf16"
	"unicode/utf8"
)

// Diversifier bytes from RFC 7292, appendix B.3.
const (
	IDKey byte = 1
	IDIV  byte = 2
	IDMAC byte = 3
)

const sha1BlockSize = 64

// bmpPassword encodes a passphrase the way the PKCS#12 KDF expects: UTF-16
// big-endian code units followed by two zero bytes. A passphrase consisting
// of a single NUL character encodes to nothing, matching the JCE.
func bmpPassword(passphrase []byte) (*Secret, error) {
	if !utf8.Valid(passphrase) {
		return nil, fmt.Errorf("passphrase is not valid UTF-8")
	}

	units := make([]uint16, 0, len(passphrase))
	for i := 0; i < len(passphrase); {
		r, size := utf8.DecodeRune(passphrase[i:])
		units = utf16.AppendRune(units, r)
		i += size
	}
	defer clear(units)

	if len(units) == 1 && units[0] == 0 {
		return NewSecret([]byte{}), nil
	}

	out := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}

	return NewSecret(append(out, 0, 0)), nil
}

// DeriveKey implements the PKCS#12 key derivation (RFC 7292, appendix B.2)
// with SHA-1, producing size bytes for the purpose given by id.
func DeriveKey(passphrase []byte, salt []byte, iterations int, id byte, size int) ([]byte, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iteration count must be positive, got %d", iterations)
	}

	password, err := bmpPassword(passphrase)
	if err != nil {
		return nil, err
	}
	defer password.Destroy()

	const u = sha1.Size
	const v = sha1BlockSize

	d := make([]byte, v)
	for i := range d {
		d[i] = id
	}

	s := fillBlocks(salt, v)
	p := fillBlocks(password.Bytes(), v)
	defer clear(p)

	i := append(s, p...)
	defer clear(i)

	out := make([]byte, 0, ((size+u-1)/u)*u)

	one := big.NewInt(1)
	modulus := new(big.Int).Lsh(one, 8*v)
	bBlock := make([]byte, v)
	defer clear(bBlock)

	for len(out) < size {
		h := sha1.New()
		h.Write(d)
		h.Write(i)
		a := h.Sum(nil)

		for r := 1; r < iterations; r++ {
			sum := sha1.Sum(a)
			a = sum[:]
		}

		out = append(out, a...)

		if len(out) >= size {
			break
		}

		for j := range bBlock {
			bBlock[j] = a[j%u]
		}

		// I_j = (I_j + B + 1) mod 2^(8v) for every v-byte block of I
		b1 := new(big.Int).SetBytes(bBlock)
		b1.Add(b1, one)

		ij := new(big.Int)
		for j := 0; j < len(i); j += v {
			ij.SetBytes(i[j : j+v])
			ij.Add(ij, b1)
			ij.Mod(ij, modulus)
			ij.FillBytes(i[j : j+v])
		}

		clear(a)
	}

	result := make([]byte, size)
	copy(result, out)
	clear(out)

	return result, nil
}

// fillBlocks repeats in until it fills a multiple of v bytes
// (v * ceil(len(in)/v)); an empty input gives an empty output.
func fillBlocks(in []byte, v int) []byte {
	if len(in) == 0 {
		return []byte{}
	}

	out := make([]byte, v*((len(in)+v-1)/v))
	for i := range out {
		out[i] = in[i%len(in)]
	}

	return out
}
