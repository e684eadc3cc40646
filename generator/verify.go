package generator

import (
	"context"
	"crypto"
	"crypto/x509"
	"os"
	"os/user"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/Venafi/ssh-keygen-seeded/fingerprint"
	"github.com/Venafi/ssh-keygen-seeded/internal/rsagen"
	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/logging"
	"github.com/Venafi/ssh-keygen-seeded/pbe"
	"github.com/Venafi/ssh-keygen-seeded/privatekey"
	"github.com/Venafi/ssh-keygen-seeded/publickey"
)

// Verify decrypts privateText with passphrase and checks that the key inside
// belongs to the public key line publicText. It returns the fingerprint of
// the pair.
func Verify(ctx context.Context, passphrase *pbe.Secret, privateText, publicText []byte) (fingerprint.Fingerprint, error) {
	logger := logging.LoggerFromContext(ctx)

	sshPub, comment, err := publickey.Parse(publicText)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}

	pkcs8, err := privatekey.Decrypt(passphrase, privateText)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	defer clear(pkcs8)

	logger.Info("private key decrypted")

	derived, err := publicFromPKCS8(pkcs8)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}

	derivedSSH, err := ssh.NewPublicKey(derived)
	if err != nil {
		return fingerprint.Fingerprint{}, keyerr.Wrap(keyerr.KindEncoding, err, "failed to convert public key to SSH format")
	}

	fprint := fingerprint.For(sshPub)
	if fingerprint.For(derivedSSH) != fprint {
		return fingerprint.Fingerprint{}, keyerr.Errorf(keyerr.KindEncoding, "private key (%s) does not match public key (%s)", describe(derivedSSH), describe(sshPub))
	}

	logger.Info("key pair verified", "fingerprint", fprint.String(), "comment", comment)

	return fprint, nil
}

func publicFromPKCS8(der []byte) (crypto.PublicKey, error) {
	if rsagen.IsRSAPKCS8(der) {
		kp, err := rsagen.ParsePKCS8(der)
		if err != nil {
			return nil, err
		}
		defer kp.Destroy()

		if err := kp.Check(); err != nil {
			return nil, keyerr.Wrap(keyerr.KindEncoding, err, "decrypted RSA key is inconsistent")
		}

		return kp.PublicKey(), nil
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to parse decrypted private key")
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "unsupported private key type %T", key)
	}

	return signer.Public(), nil
}

// LocalUsername returns the account name of the invoking user, without any
// Windows domain prefix, or an empty string if it cannot be determined.
func LocalUsername() string {
	name := ""

	if u, err := user.Current(); err == nil {
		name = u.Username
	}

	if name == "" {
		name = os.Getenv("USER")
	}

	if name == "" {
		name = os.Getenv("USERNAME")
	}

	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}

	return name
}
