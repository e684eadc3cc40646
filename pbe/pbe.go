// Package pbe encrypts private key material under a passphrase with the
// PKCS#12 pbeWithSHAAnd3-KeyTripleDES-CBC scheme (JCE name
// PBEWithSHA1AndDESede).
//
// The scheme is weak by current standards: SHA-1, a fixed salt and 20
// iterations. It is kept because the output has to stay byte-compatible
// with keys produced earlier for the same seed and passphrase.
package pbe

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

const (
	keySize = 24
	ivSize  = des.BlockSize
)

// ErrBadPassphrase is returned by Decrypt when the padding of the decrypted
// data is invalid, which almost always means the passphrase was wrong.
var ErrBadPassphrase = errors.New("decryption failed: wrong passphrase or corrupted data")

// Parameters identify the scheme and its inputs inside an
// EncryptedPrivateKeyInfo.
type Parameters struct {
	Algorithm  asn1.ObjectIdentifier
	Salt       []byte
	Iterations int
}

// DefaultParameters returns the fixed parameters every key is encrypted with.
func DefaultParameters() Parameters {
	return Parameters{
		Algorithm:  policy.OIDPBEWithSHAAnd3KeyTripleDESCBC,
		Salt:       policy.PBESalt(),
		Iterations: policy.PBEIterations,
	}
}

// Encrypt derives the key and IV from passphrase with DefaultParameters and
// encrypts plaintext with DES-EDE3-CBC and PKCS#5 padding. An empty
// passphrase is valid.
func Encrypt(passphrase *Secret, plaintext []byte) ([]byte, Parameters, error) {
	params := DefaultParameters()

	ciphertext, err := EncryptWithParameters(passphrase, params, plaintext)
	if err != nil {
		return nil, Parameters{}, err
	}

	return ciphertext, params, nil
}

func EncryptWithParameters(passphrase *Secret, params Parameters, plaintext []byte) ([]byte, error) {
	block, iv, err := newCipher(passphrase, params)
	if err != nil {
		return nil, err
	}
	defer clear(iv)

	padded := pad(plaintext, block.BlockSize())
	defer clear(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// Decrypt reverses Encrypt. The caller owns the plaintext and should clear it.
// params usually come from a file, so iteration counts above
// policy.PBEMaxIterations are rejected before any key derivation.
func Decrypt(passphrase *Secret, params Parameters, ciphertext []byte) ([]byte, error) {
	if params.Iterations < 1 || params.Iterations > policy.PBEMaxIterations {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "iteration count %d is out of range (1 to %d)", params.Iterations, policy.PBEMaxIterations)
	}

	block, iv, err := newCipher(passphrase, params)
	if err != nil {
		return nil, err
	}
	defer clear(iv)

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := unpad(plaintext, block.BlockSize())
	if !ok {
		clear(plaintext)
		return nil, keyerr.Wrap(keyerr.KindEncoding, ErrBadPassphrase, "")
	}

	return unpadded, nil
}

func newCipher(passphrase *Secret, params Parameters) (cipher.Block, []byte, error) {
	if !params.Algorithm.Equal(policy.OIDPBEWithSHAAnd3KeyTripleDESCBC) {
		return nil, nil, keyerr.Errorf(keyerr.KindCipherInitialization, "unsupported encryption algorithm %s (want %s)", params.Algorithm, policy.PBEAlgorithmName)
	}

	key, err := DeriveKey(passphrase.Bytes(), params.Salt, params.Iterations, IDKey, keySize)
	if err != nil {
		return nil, nil, keyerr.Wrap(keyerr.KindCipherInitialization, err, "failed to derive encryption key")
	}
	defer clear(key)

	iv, err := DeriveKey(passphrase.Bytes(), params.Salt, params.Iterations, IDIV, ivSize)
	if err != nil {
		return nil, nil, keyerr.Wrap(keyerr.KindCipherInitialization, err, "failed to derive IV")
	}

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		clear(iv)
		return nil, nil, keyerr.Wrap(keyerr.KindCipherInitialization, err, fmt.Sprintf("failed to initialize %s", policy.PBEAlgorithmName))
	}

	return block, iv, nil
}

// pad applies PKCS#5 padding; a full block is added when the input is
// already aligned.
func pad(in []byte, blockSize int) []byte {
	n := blockSize - len(in)%blockSize

	out := make([]byte, len(in)+n)
	copy(out, in)
	copy(out[len(in):], bytes.Repeat([]byte{byte(n)}, n))

	return out
}

func unpad(in []byte, blockSize int) ([]byte, bool) {
	if len(in) == 0 {
		return nil, false
	}

	n := int(in[len(in)-1])
	if n == 0 || n > blockSize || n > len(in) {
		return nil, false
	}

	for _, b := range in[len(in)-n:] {
		if int(b) != n {
			return nil, false
		}
	}

	return in[:len(in)-n], true
}
