package ecgen

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Venafi/ssh-keygen-seeded/internal/seedrand"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

func TestGenerateKeyDeterministic(t *testing.T) {
	for _, curve := range []Curve{P256, P384, P521} {
		t.Run(string(curve), func(t *testing.T) {
			kp1, err := GenerateKey(seedrand.NewChaCha8([]byte("abc")), curve)
			require.NoError(t, err)

			kp2, err := GenerateKey(seedrand.NewChaCha8([]byte("abc")), curve)
			require.NoError(t, err)

			other, err := GenerateKey(seedrand.NewChaCha8([]byte("abd")), curve)
			require.NoError(t, err)

			require.True(t, kp1.Key.Equal(kp2.Key))
			require.False(t, kp1.Key.Equal(other.Key))

			der, err := kp1.MarshalPKCS8()
			require.NoError(t, err)

			parsed, err := x509.ParsePKCS8PrivateKey(der)
			require.NoError(t, err)
			require.IsType(t, &ecdsa.PrivateKey{}, parsed)
			require.True(t, kp1.Key.Equal(parsed))
		})
	}
}

func TestGenerateKeyShortSource(t *testing.T) {
	_, err := GenerateKey(bytes.NewReader(make([]byte, 4)), P256)
	require.Error(t, err)
}

func TestParseCurve(t *testing.T) {
	for in, exp := range map[string]Curve{
		"":      P256,
		"P-256": P256,
		"p384":  P384,
		"P521":  P521,
	} {
		c, err := ParseCurve(in)
		require.NoError(t, err)
		require.Equal(t, exp, c)
	}

	_, err := ParseCurve("secp256k1")
	require.Equal(t, keyerr.KindInvalidParameters, keyerr.KindOf(err))
}

func TestDestroy(t *testing.T) {
	kp, err := GenerateKey(seedrand.NewChaCha8([]byte("abc")), P256)
	require.NoError(t, err)

	pub := *kp.PublicKey()
	kp.Destroy()

	require.Nil(t, kp.Key.D)
	require.True(t, pub.Equal(kp.PublicKey()))
}
