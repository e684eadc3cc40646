// Package privatekey renders encrypted private keys as
// "ENCRYPTED PRIVATE KEY" text blocks and reads them back.
package privatekey

import (
	"bytes"
	encasn1 "encoding/asn1"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
	"github.com/Venafi/ssh-keygen-seeded/pbe"
	"github.com/Venafi/ssh-keygen-seeded/policy"
)

// EncryptedPrivateKeyInfo is the PKCS#8 structure
//
//	SEQUENCE {
//	  SEQUENCE { algorithm OID, SEQUENCE { salt OCTET STRING, iterations INTEGER } }
//	  encryptedData OCTET STRING
//	}
type EncryptedPrivateKeyInfo struct {
	Parameters    pbe.Parameters
	EncryptedData []byte
}

func (info *EncryptedPrivateKeyInfo) MarshalBinary() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(info.Parameters.Algorithm)
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString(info.Parameters.Salt)
				b.AddASN1Int64(int64(info.Parameters.Iterations))
			})
		})
		b.AddASN1OctetString(info.EncryptedData)
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to encode encrypted private key info")
	}

	return der, nil
}

func ParseEncryptedPrivateKeyInfo(der []byte) (*EncryptedPrivateKeyInfo, error) {
	input := cryptobyte.String(der)

	var seq, algID, params, salt, data cryptobyte.String
	var oid encasn1.ObjectIdentifier
	var iterations int

	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1(&algID, asn1.SEQUENCE) ||
		!algID.ReadASN1ObjectIdentifier(&oid) ||
		!algID.ReadASN1(&params, asn1.SEQUENCE) ||
		!params.ReadASN1(&salt, asn1.OCTET_STRING) ||
		!params.ReadASN1Integer(&iterations) ||
		!seq.ReadASN1(&data, asn1.OCTET_STRING) || !seq.Empty() {
		return nil, keyerr.New(keyerr.KindEncoding, "malformed encrypted private key info")
	}

	return &EncryptedPrivateKeyInfo{
		Parameters: pbe.Parameters{
			Algorithm:  oid,
			Salt:       bytes.Clone(salt),
			Iterations: iterations,
		},
		EncryptedData: bytes.Clone(data),
	}, nil
}

// Encode wraps der in the header and footer lines. The body is MIME base64:
// lines of 76 characters joined by CRLF, with no separator after the last
// line. lineSeparator goes after the header and before the footer; nothing
// follows the footer.
func Encode(der []byte, lineSeparator string) []byte {
	var buf bytes.Buffer

	buf.WriteString(policy.PrivateKeyHeader)
	buf.WriteString(lineSeparator)
	buf.WriteString(mimeBase64(der))
	buf.WriteString(lineSeparator)
	buf.WriteString(policy.PrivateKeyFooter)

	return buf.Bytes()
}

func mimeBase64(der []byte) string {
	encoded := base64.StdEncoding.EncodeToString(der)

	lines := make([]string, 0, len(encoded)/policy.MIMELineLength+1)
	for len(encoded) > policy.MIMELineLength {
		lines = append(lines, encoded[:policy.MIMELineLength])
		encoded = encoded[policy.MIMELineLength:]
	}
	lines = append(lines, encoded)

	return strings.Join(lines, policy.MIMELineSeparator)
}

// Decode extracts the DER bytes from a text block produced by Encode. Any
// mix of CRLF and LF line endings is accepted, as is a trailing newline.
func Decode(text []byte) ([]byte, error) {
	normalized := strings.ReplaceAll(string(text), "\r\n", "\n")
	normalized = strings.TrimRight(normalized, "\n")

	body, ok := strings.CutPrefix(normalized, policy.PrivateKeyHeader+"\n")
	if !ok {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "private key does not start with %q", policy.PrivateKeyHeader)
	}

	body, ok = strings.CutSuffix(body, "\n"+policy.PrivateKeyFooter)
	if !ok {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "private key does not end with %q", policy.PrivateKeyFooter)
	}

	der, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\n", ""))
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to decode private key body")
	}

	return der, nil
}

// Encrypt encrypts pkcs8 under passphrase and returns the complete text
// block.
func Encrypt(passphrase *pbe.Secret, pkcs8 []byte, lineSeparator string) ([]byte, error) {
	ciphertext, params, err := pbe.Encrypt(passphrase, pkcs8)
	if err != nil {
		return nil, err
	}

	info := &EncryptedPrivateKeyInfo{
		Parameters:    params,
		EncryptedData: ciphertext,
	}

	der, err := info.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return Encode(der, lineSeparator), nil
}

// Decrypt reverses Encrypt, returning the PKCS#8 PrivateKeyInfo bytes. The
// parameters stored in the block are used, so keys written with other salts
// or iteration counts of the same scheme can be read too.
func Decrypt(passphrase *pbe.Secret, text []byte) ([]byte, error) {
	der, err := Decode(text)
	if err != nil {
		return nil, err
	}

	info, err := ParseEncryptedPrivateKeyInfo(der)
	if err != nil {
		return nil, err
	}

	return pbe.Decrypt(passphrase, info.Parameters, info.EncryptedData)
}
