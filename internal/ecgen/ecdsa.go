// Package ecgen derives ECDSA keys deterministically from a seeded stream.
package ecgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"
	"io"
	"strings"

	"filippo.io/keygen"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

// secretSize is the number of stream bytes handed to keygen.ECDSA.
const secretSize = 32

type Curve string

const (
	P256 Curve = "p256"
	P384 Curve = "p384"
	P521 Curve = "p521"

	DefaultCurve = P256
)

func ParseCurve(name string) (Curve, error) {
	switch c := Curve(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "")); c {
	case "":
		return DefaultCurve, nil
	case P256, P384, P521:
		return c, nil
	default:
		return "", keyerr.Errorf(keyerr.KindInvalidParameters, "unknown curve %q (want p256, p384 or p521)", name)
	}
}

func (c Curve) elliptic() (elliptic.Curve, error) {
	switch c {
	case P256:
		return elliptic.P256(), nil
	case P384:
		return elliptic.P384(), nil
	case P521:
		return elliptic.P521(), nil
	default:
		return nil, keyerr.Errorf(keyerr.KindInvalidParameters, "unknown curve %q", string(c))
	}
}

type KeyPair struct {
	Key *ecdsa.PrivateKey
}

// GenerateKey reads a 32-byte secret from random and derives the key from
// it with the FIPS 186-5 A.2.2 procedure implemented by filippo.io/keygen.
func GenerateKey(random io.Reader, curve Curve) (*KeyPair, error) {
	c, err := curve.elliptic()
	if err != nil {
		return nil, err
	}

	secret := make([]byte, secretSize)
	defer clear(secret)

	if _, err := io.ReadFull(random, secret); err != nil {
		return nil, fmt.Errorf("failed to read from random source: %w", err)
	}

	pk, err := keygen.ECDSA(c, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return &KeyPair{Key: pk}, nil
}

func (kp *KeyPair) PublicKey() *ecdsa.PublicKey {
	return &kp.Key.PublicKey
}

func (kp *KeyPair) MarshalPKCS8() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.Key)
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to encode ECDSA private key")
	}

	return der, nil
}

// Destroy zeroes the private scalar. The public key stays usable.
func (kp *KeyPair) Destroy() {
	if kp.Key == nil || kp.Key.D == nil {
		return
	}

	clear(kp.Key.D.Bits())
	kp.Key.D.SetInt64(0)
	kp.Key.D = nil
}
