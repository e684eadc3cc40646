package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/ssh"
)

// Fingerprint is the SHA-256 digest of a public key's SSH wire encoding.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// String formats the fingerprint the way ssh-keygen -l does.
func (f Fingerprint) String() string {
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(f[:])
}

func For(pub ssh.PublicKey) Fingerprint {
	return sha256.Sum256(pub.Marshal())
}
