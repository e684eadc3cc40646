package generator

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Venafi/ssh-keygen-seeded/internal/ecgen"
	"github.com/Venafi/ssh-keygen-seeded/internal/seedrand"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/logging"
	"github.com/Venafi/ssh-keygen-seeded/pbe"
	"github.com/Venafi/ssh-keygen-seeded/policy"
	"github.com/Venafi/ssh-keygen-seeded/publickey"
)

const abcModulus = "cc897fdd39cfb9b925640c1b9bbdf8ee901eca72c5475c25eff64fdf9caa52ba54f2916218b0277222013f4611f40695b362f99342ebc7ddd96a6722e9102b23"

func rsaRequest(seed, passphrase string) *Request {
	return &Request{
		Seed:          []byte(seed),
		Passphrase:    pbe.NewSecretString(passphrase),
		Algorithm:     RSA,
		KeySize:       512,
		PRNG:          seedrand.SHA1PRNG,
		Comment:       "alice",
		LineSeparator: "\n",
	}
}

func publicRSA(t *testing.T, line []byte) *rsa.PublicKey {
	t.Helper()

	sshPub, _, err := publickey.Parse(line)
	require.NoError(t, err)

	pub, err := publickey.CryptoPublicKey(sshPub)
	require.NoError(t, err)

	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)

	return rsaPub
}

func TestGenerateKnownAnswer(t *testing.T) {
	out, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	want, ok := new(big.Int).SetString(abcModulus, 16)
	require.True(t, ok)

	pub := publicRSA(t, out.PublicKey)
	require.Equal(t, 0, want.Cmp(pub.N))
	require.Equal(t, policy.PublicExponent, pub.E)
}

func TestGenerateFormat(t *testing.T) {
	out, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	fields := strings.Split(string(out.PublicKey), " ")
	require.Len(t, fields, 3)
	require.Equal(t, policy.RSAPublicKeyTag, fields[0])
	require.Equal(t, "alice", fields[2])
	require.NotContains(t, string(out.PublicKey), "\n")

	text := string(out.PrivateKey)
	require.True(t, strings.HasPrefix(text, policy.PrivateKeyHeader+"\n"))
	require.True(t, strings.HasSuffix(text, "\n"+policy.PrivateKeyFooter))

	body := strings.TrimSuffix(strings.TrimPrefix(text, policy.PrivateKeyHeader+"\n"), "\n"+policy.PrivateKeyFooter)
	for _, line := range strings.Split(body, "\r\n") {
		require.LessOrEqual(t, len(line), policy.MIMELineLength)
	}

	files := out.Files()
	require.Len(t, files, 2)
	require.Equal(t, "id_rsa", files[0].Name)
	require.Equal(t, "id_rsa.pub", files[1].Name)
}

func TestGenerateDeterministic(t *testing.T) {
	tests := map[string]func() *Request{
		"sha1prng": func() *Request { return rsaRequest("abc", "pw") },
		"chacha8": func() *Request {
			req := rsaRequest("abc", "pw")
			req.PRNG = seedrand.ChaCha8
			return req
		},
		"ecdsa": func() *Request {
			req := rsaRequest("abc", "pw")
			req.Algorithm = ECDSA
			req.Curve = ecgen.P384
			return req
		},
	}

	for name, newReq := range tests {
		t.Run(name, func(t *testing.T) {
			first, err := Generate(context.Background(), newReq())
			require.NoError(t, err)

			second, err := Generate(context.Background(), newReq())
			require.NoError(t, err)

			require.Equal(t, first.PublicKey, second.PublicKey)
			require.Equal(t, first.PrivateKey, second.PrivateKey)
			require.Equal(t, first.Fingerprint, second.Fingerprint)
		})
	}
}

func TestGenerateSeedChangesKey(t *testing.T) {
	abc, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	abd, err := Generate(context.Background(), rsaRequest("abd", "pw"))
	require.NoError(t, err)

	require.NotEqual(t, 0, publicRSA(t, abc.PublicKey).N.Cmp(publicRSA(t, abd.PublicKey).N))
	require.NotEqual(t, abc.Fingerprint, abd.Fingerprint)
}

func TestGeneratePassphraseOnlyChangesPrivateKey(t *testing.T) {
	a, err := Generate(context.Background(), rsaRequest("abc", "one"))
	require.NoError(t, err)

	b, err := Generate(context.Background(), rsaRequest("abc", "two"))
	require.NoError(t, err)

	require.Equal(t, a.PublicKey, b.PublicKey)
	require.NotEqual(t, a.PrivateKey, b.PrivateKey)
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		req        func(passphrase string) *Request
	}{
		{
			name:       "rsa",
			passphrase: "correct horse",
			req:        func(p string) *Request { return rsaRequest("abc", p) },
		},
		{
			name:       "rsa empty passphrase",
			passphrase: "",
			req:        func(p string) *Request { return rsaRequest("", p) },
		},
		{
			name:       "ecdsa",
			passphrase: "pw",
			req: func(p string) *Request {
				req := rsaRequest("abc", p)
				req.Algorithm = ECDSA
				req.Curve = ecgen.P256
				return req
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out, err := Generate(context.Background(), test.req(test.passphrase))
			require.NoError(t, err)

			fprint, err := Verify(context.Background(), pbe.NewSecretString(test.passphrase), out.PrivateKey, out.PublicKey)
			require.NoError(t, err)
			require.Equal(t, out.Fingerprint, fprint)

			_, err = Verify(context.Background(), pbe.NewSecretString(test.passphrase+"x"), out.PrivateKey, out.PublicKey)
			require.Error(t, err)
		})
	}
}

func TestVerifyMismatch(t *testing.T) {
	abc, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	abd, err := Generate(context.Background(), rsaRequest("abd", "pw"))
	require.NoError(t, err)

	_, err = Verify(context.Background(), pbe.NewSecretString("pw"), abc.PrivateKey, abd.PublicKey)
	require.Error(t, err)
	require.Equal(t, keyerr.KindEncoding, keyerr.KindOf(err))
	require.Contains(t, err.Error(), "does not match")
}

func TestGenerateECDSA(t *testing.T) {
	req := rsaRequest("abc", "pw")
	req.Algorithm = ECDSA
	req.Curve = ecgen.P521
	req.JWK = true

	out, err := Generate(context.Background(), req)
	require.NoError(t, err)

	sshPub, comment, err := publickey.Parse(out.PublicKey)
	require.NoError(t, err)
	require.Equal(t, "ecdsa-sha2-nistp521", sshPub.Type())
	require.Equal(t, "alice", comment)

	pub, err := publickey.CryptoPublicKey(sshPub)
	require.NoError(t, err)
	_, ok := pub.(*ecdsa.PublicKey)
	require.True(t, ok)

	var jwk map[string]any
	require.NoError(t, json.Unmarshal(out.JWK, &jwk))
	require.Equal(t, "EC", jwk["kty"])
	require.Equal(t, "ES512", jwk["alg"])
	require.Equal(t, out.Fingerprint.Hex(), jwk["kid"])

	files := out.Files()
	require.Len(t, files, 3)
	require.Equal(t, "id_ecdsa.jwk", files[2].Name)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Request)
		kind   keyerr.Kind
	}{
		{
			name:   "nil passphrase",
			modify: func(r *Request) { r.Passphrase = nil },
			kind:   keyerr.KindInvalidParameters,
		},
		{
			name:   "unknown algorithm",
			modify: func(r *Request) { r.Algorithm = "dsa" },
			kind:   keyerr.KindInvalidParameters,
		},
		{
			name:   "unknown prng",
			modify: func(r *Request) { r.PRNG = "mt19937" },
			kind:   keyerr.KindInvalidParameters,
		},
		{
			name:   "key too small",
			modify: func(r *Request) { r.KeySize = 256 },
			kind:   keyerr.KindInvalidKeySize,
		},
		{
			name: "multiline comment",
			modify: func(r *Request) {
				r.Comment = "alice\nbob"
			},
			kind: keyerr.KindInvalidParameters,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := rsaRequest("abc", "pw")
			test.modify(req)

			out, err := Generate(context.Background(), req)
			require.Error(t, err)
			require.Nil(t, out)
			require.Equal(t, test.kind, keyerr.KindOf(err))
		})
	}
}

func TestGenerateVerboseDoesNotChangeOutput(t *testing.T) {
	quiet, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	var logs bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), logging.New(&logs, true))

	loud, err := Generate(ctx, rsaRequest("abc", "pw"))
	require.NoError(t, err)

	require.Equal(t, quiet.PublicKey, loud.PublicKey)
	require.Equal(t, quiet.PrivateKey, loud.PrivateKey)

	require.Contains(t, logs.String(), "source of randomness initialized with seed")
	require.Contains(t, logs.String(), "private key encrypted and formatted")
}

func TestGenerateWithoutLoggerIsSilent(t *testing.T) {
	var logs bytes.Buffer

	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })

	_, err := Generate(context.Background(), rsaRequest("abc", "pw"))
	require.NoError(t, err)

	require.Empty(t, logs.String())
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm(" RSA ")
	require.NoError(t, err)
	require.Equal(t, RSA, alg)

	_, err = ParseAlgorithm("dsa")
	require.Error(t, err)
	require.Equal(t, keyerr.KindInvalidParameters, keyerr.KindOf(err))
	require.Equal(t, "command dsa is unknown", err.Error())
}

func TestLocalUsername(t *testing.T) {
	t.Setenv("USER", `CORP\alice`)

	name := LocalUsername()
	require.NotContains(t, name, `\`)
}
