package rsagen

import (
	"crypto/rsa"
	encasn1 "encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

var oidRSAEncryption = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}

// KeyPair is a two-prime RSA key with its CRT values. Call Destroy once the
// private half is no longer needed.
type KeyPair struct {
	Modulus         *big.Int
	PublicExponent  *big.Int
	PrivateExponent *big.Int

	PrimeP *big.Int
	PrimeQ *big.Int

	ExponentP   *big.Int // d mod (p-1)
	ExponentQ   *big.Int // d mod (q-1)
	Coefficient *big.Int // q^-1 mod p
}

func newKeyPair(n, d, p, q *big.Int) *KeyPair {
	pMinus1 := new(big.Int).Sub(p, bigOne)
	qMinus1 := new(big.Int).Sub(q, bigOne)

	return &KeyPair{
		Modulus:         n,
		PublicExponent:  new(big.Int).Set(bigE),
		PrivateExponent: d,

		PrimeP: p,
		PrimeQ: q,

		ExponentP:   new(big.Int).Mod(d, pMinus1),
		ExponentQ:   new(big.Int).Mod(d, qMinus1),
		Coefficient: new(big.Int).ModInverse(q, p),
	}
}

func (kp *KeyPair) BitLen() int {
	return kp.Modulus.BitLen()
}

func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).Set(kp.Modulus),
		E: int(kp.PublicExponent.Int64()),
	}
}

// Check verifies the arithmetic relations between the key's components.
// It works for any key size, unlike rsa.PrivateKey.Validate on newer Go
// releases.
func (kp *KeyPair) Check() error {
	if kp.PrimeP == nil || kp.PrimeQ == nil || kp.PrivateExponent == nil {
		return fmt.Errorf("key pair is missing private components")
	}

	if new(big.Int).Mul(kp.PrimeP, kp.PrimeQ).Cmp(kp.Modulus) != 0 {
		return fmt.Errorf("modulus is not the product of the primes")
	}

	for _, prime := range []*big.Int{kp.PrimeP, kp.PrimeQ} {
		pMinus1 := new(big.Int).Sub(prime, bigOne)
		de := new(big.Int).Mul(kp.PrivateExponent, kp.PublicExponent)
		if de.Mod(de, pMinus1).Cmp(bigOne) != 0 {
			return fmt.Errorf("private exponent is not an inverse of the public exponent")
		}
	}

	qInv := new(big.Int).Mul(kp.Coefficient, kp.PrimeQ)
	if qInv.Mod(qInv, kp.PrimeP).Cmp(bigOne) != 0 {
		return fmt.Errorf("invalid CRT coefficient")
	}

	return nil
}

// MarshalPKCS8 returns the PKCS#8 PrivateKeyInfo DER of the key:
//
//	SEQUENCE { INTEGER 0, SEQUENCE { rsaEncryption, NULL }, OCTET STRING RSAPrivateKey }
//
// The caller owns the returned buffer and should clear it after use.
func (kp *KeyPair) MarshalPKCS8() ([]byte, error) {
	var pkcs1 cryptobyte.Builder
	pkcs1.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		b.AddASN1BigInt(kp.Modulus)
		b.AddASN1BigInt(kp.PublicExponent)
		b.AddASN1BigInt(kp.PrivateExponent)
		b.AddASN1BigInt(kp.PrimeP)
		b.AddASN1BigInt(kp.PrimeQ)
		b.AddASN1BigInt(kp.ExponentP)
		b.AddASN1BigInt(kp.ExponentQ)
		b.AddASN1BigInt(kp.Coefficient)
	})

	rsaKey, err := pkcs1.Bytes()
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to encode RSA private key")
	}
	defer clear(rsaKey)

	var info cryptobyte.Builder
	info.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidRSAEncryption)
			b.AddASN1NULL()
		})
		b.AddASN1OctetString(rsaKey)
	})

	der, err := info.Bytes()
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to encode PKCS#8 private key info")
	}

	return der, nil
}

// IsRSAPKCS8 reports whether der is a PrivateKeyInfo for an RSA key.
func IsRSAPKCS8(der []byte) bool {
	oid, _, err := readPrivateKeyInfo(der)
	return err == nil && oid.Equal(oidRSAEncryption)
}

// ParsePKCS8 is the inverse of MarshalPKCS8.
func ParsePKCS8(der []byte) (*KeyPair, error) {
	oid, rsaKey, err := readPrivateKeyInfo(der)
	if err != nil {
		return nil, err
	}

	if !oid.Equal(oidRSAEncryption) {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "private key algorithm %s is not RSA", oid)
	}

	var seq cryptobyte.String
	if !rsaKey.ReadASN1(&seq, asn1.SEQUENCE) || !rsaKey.Empty() {
		return nil, keyerr.New(keyerr.KindEncoding, "malformed RSA private key")
	}

	var version int
	if !seq.ReadASN1Integer(&version) || version != 0 {
		return nil, keyerr.New(keyerr.KindEncoding, "unsupported RSA private key version")
	}

	kp := &KeyPair{}
	for _, field := range []**big.Int{
		&kp.Modulus, &kp.PublicExponent, &kp.PrivateExponent,
		&kp.PrimeP, &kp.PrimeQ,
		&kp.ExponentP, &kp.ExponentQ, &kp.Coefficient,
	} {
		*field = new(big.Int)
		if !seq.ReadASN1Integer(*field) {
			kp.Destroy()
			return nil, keyerr.New(keyerr.KindEncoding, "malformed RSA private key integer")
		}
	}

	if kp.PublicExponent.Cmp(bigE) != 0 {
		exp := kp.PublicExponent.String()
		kp.Destroy()
		return nil, keyerr.Errorf(keyerr.KindEncoding, "unexpected public exponent %s (want %d)", exp, policy.PublicExponent)
	}

	return kp, nil
}

func readPrivateKeyInfo(der []byte) (encasn1.ObjectIdentifier, cryptobyte.String, error) {
	input := cryptobyte.String(der)

	var info cryptobyte.String
	if !input.ReadASN1(&info, asn1.SEQUENCE) || !input.Empty() {
		return nil, nil, keyerr.New(keyerr.KindEncoding, "malformed PKCS#8 private key info")
	}

	var version int
	if !info.ReadASN1Integer(&version) || version != 0 {
		return nil, nil, keyerr.New(keyerr.KindEncoding, "unsupported PKCS#8 version")
	}

	var algID cryptobyte.String
	var oid encasn1.ObjectIdentifier
	if !info.ReadASN1(&algID, asn1.SEQUENCE) || !algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, nil, keyerr.New(keyerr.KindEncoding, "malformed PKCS#8 algorithm identifier")
	}

	var key cryptobyte.String
	if !info.ReadASN1(&key, asn1.OCTET_STRING) {
		return nil, nil, keyerr.New(keyerr.KindEncoding, "malformed PKCS#8 private key")
	}

	return oid, key, nil
}

// Destroy zeroes the private components. The public half stays usable.
func (kp *KeyPair) Destroy() {
	for _, x := range []*big.Int{
		kp.PrivateExponent,
		kp.PrimeP, kp.PrimeQ,
		kp.ExponentP, kp.ExponentQ, kp.Coefficient,
	} {
		wipe(x)
	}

	kp.PrivateExponent = nil
	kp.PrimeP, kp.PrimeQ = nil, nil
	kp.ExponentP, kp.ExponentQ, kp.Coefficient = nil, nil, nil
}

func wipe(x *big.Int) {
	if x == nil {
		return
	}

	clear(x.Bits())
	x.SetInt64(0)
}
