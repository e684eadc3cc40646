// Package generator turns a seed and a passphrase into a public key line
// and an encrypted private key block.
//
//	seed -> seedrand -> rsagen / ecgen -> publickey
//	                                   -> PKCS#8 -> pbe -> privatekey
//
// Both outputs are complete in memory before Generate returns, so a caller
// that fails halfway never has anything to write.
package generator

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/Venafi/ssh-keygen-seeded/config"
	"github.com/Venafi/ssh-keygen-seeded/fingerprint"
	"github.com/Venafi/ssh-keygen-seeded/internal/ecgen"
	"github.com/Venafi/ssh-keygen-seeded/internal/keyfile"
	"github.com/Venafi/ssh-keygen-seeded/internal/rsagen"
	"github.com/Venafi/ssh-keygen-seeded/internal/seedrand"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/logging"
	"github.com/Venafi/ssh-keygen-seeded/pbe"
	"github.com/Venafi/ssh-keygen-seeded/policy"
	"github.com/Venafi/ssh-keygen-seeded/privatekey"
	"github.com/Venafi/ssh-keygen-seeded/publickey"
)

type Algorithm string

const (
	RSA   Algorithm = "rsa"
	ECDSA Algorithm = "ecdsa"
)

func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case RSA, ECDSA:
		return alg, nil
	default:
		return "", keyerr.Errorf(keyerr.KindInvalidParameters, "command %s is unknown", name)
	}
}

// PrivateKeyFile is the default file name of the private key; the public
// key goes next to it with a ".pub" suffix.
func (a Algorithm) PrivateKeyFile() string {
	if a == ECDSA {
		return policy.ECDSAPrivateKeyFile
	}

	return policy.RSAPrivateKeyFile
}

type Request struct {
	// Seed is used as-is; an empty seed is valid.
	Seed []byte

	// Passphrase stays owned by the caller.
	Passphrase *pbe.Secret

	Algorithm Algorithm

	// KeySize is the RSA modulus length in bits.
	KeySize int

	// Curve selects the ECDSA curve.
	Curve ecgen.Curve

	PRNG seedrand.Algorithm

	// Comment is appended to the public key line, usually the local user name.
	Comment string

	// LineSeparator goes around the private key body. Empty means the
	// platform separator.
	LineSeparator string

	// JWK also renders the public key as a JSON Web Key.
	JWK bool
}

type Output struct {
	Algorithm Algorithm

	PrivateKey []byte
	PublicKey  []byte
	JWK        []byte

	Fingerprint fingerprint.Fingerprint
}

// Files lists the artifacts under their default names.
func (o *Output) Files() []keyfile.File {
	name := o.Algorithm.PrivateKeyFile()

	files := []keyfile.File{
		{Name: name, Contents: o.PrivateKey, Mode: 0o600},
		{Name: name + policy.PublicKeySuffix, Contents: o.PublicKey, Mode: 0o644},
	}

	if o.JWK != nil {
		files = append(files, keyfile.File{Name: name + policy.JWKSuffix, Contents: o.JWK, Mode: 0o644})
	}

	return files
}

// keyMaterial is the part of a generated key pair the encoders need.
type keyMaterial struct {
	public  crypto.PublicKey
	pkcs8   func() ([]byte, error)
	destroy func()
}

func Generate(ctx context.Context, req *Request) (*Output, error) {
	logger := logging.LoggerFromContext(ctx)

	if req.Passphrase == nil {
		return nil, keyerr.New(keyerr.KindInvalidParameters, "passphrase must be provided")
	}

	lineSeparator := req.LineSeparator
	if lineSeparator == "" {
		var err error
		if lineSeparator, err = config.LineEndingPlatform.Separator(); err != nil {
			return nil, err
		}
	}

	prng := req.PRNG
	if prng == "" {
		prng = seedrand.Default
	}

	random, err := seedrand.New(prng, req.Seed)
	if err != nil {
		return nil, err
	}
	if r, ok := random.(*seedrand.SHA1PRNGReader); ok {
		defer r.Destroy()
	}

	logger.Info("source of randomness initialized with seed", "prng", string(prng))

	key, err := generateKey(ctx, req, random)
	if err != nil {
		return nil, err
	}
	defer key.destroy()

	sshPub, err := ssh.NewPublicKey(key.public)
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to convert public key to SSH format")
	}

	fprint := fingerprint.For(sshPub)

	logger.Info("key pair generated", "algorithm", sshPub.Type(), "fingerprint", fprint.String())

	publicLine, err := publickey.Encode(sshPub, req.Comment)
	if err != nil {
		return nil, err
	}

	pkcs8, err := key.pkcs8()
	if err != nil {
		return nil, err
	}
	defer clear(pkcs8)

	logger.Info("prepared for password based encryption of private key", "scheme", policy.PBEAlgorithmName, "iterations", policy.PBEIterations)

	privateText, err := privatekey.Encrypt(req.Passphrase, pkcs8, lineSeparator)
	if err != nil {
		return nil, err
	}

	logger.Info("private key encrypted and formatted")

	out := &Output{
		Algorithm:   req.Algorithm,
		PrivateKey:  privateText,
		PublicKey:   publicLine,
		Fingerprint: fprint,
	}

	if req.JWK {
		out.JWK, err = publickey.JWK(key.public, fprint.Hex())
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func generateKey(ctx context.Context, req *Request, random io.Reader) (*keyMaterial, error) {
	switch req.Algorithm {
	case RSA:
		kp, err := rsagen.GenerateKey(ctx, random, req.KeySize)
		if err != nil {
			return nil, err
		}

		return &keyMaterial{
			public:  kp.PublicKey(),
			pkcs8:   kp.MarshalPKCS8,
			destroy: kp.Destroy,
		}, nil

	case ECDSA:
		curve := req.Curve
		if curve == "" {
			curve = ecgen.DefaultCurve
		}

		kp, err := ecgen.GenerateKey(random, curve)
		if err != nil {
			return nil, err
		}

		return &keyMaterial{
			public:  kp.PublicKey(),
			pkcs8:   kp.MarshalPKCS8,
			destroy: kp.Destroy,
		}, nil

	default:
		return nil, keyerr.Errorf(keyerr.KindInvalidParameters, "command %s is unknown", string(req.Algorithm))
	}
}

// describe is used in error messages about mismatching key pairs.
func describe(pub ssh.PublicKey) string {
	return fmt.Sprintf("%s %s", pub.Type(), fingerprint.For(pub))
}
