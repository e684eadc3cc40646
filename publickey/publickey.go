/*
Copyright 2024 Venafi

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package publickey writes public keys as single authorized_keys lines:
//
//	<tag> <base64 of the SSH wire record> <comment>
//
// For RSA the wire record is string("ssh-rsa"), mpint(e), mpint(n), each
// prefixed by its 4-byte big-endian length; mpints are minimal two's
// complement, so a leading zero byte appears when the top bit is set.
package publickey

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/ssh"

	"github.com/Venafi/ssh-keygen-seeded/keyerr"
)

func wrap(pub crypto.PublicKey) (ssh.PublicKey, error) {
	if sshPub, ok := pub.(ssh.PublicKey); ok {
		return sshPub, nil
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to convert public key to SSH format")
	}

	return sshPub, nil
}

// Marshal returns the SSH wire record of pub.
func Marshal(pub crypto.PublicKey) ([]byte, error) {
	sshPub, err := wrap(pub)
	if err != nil {
		return nil, err
	}

	return sshPub.Marshal(), nil
}

// Encode returns the authorized_keys line for pub. There is always exactly
// one space on each side of the base64 field and no trailing newline.
func Encode(pub crypto.PublicKey, comment string) ([]byte, error) {
	if strings.ContainsAny(comment, "\r\n") {
		return nil, keyerr.New(keyerr.KindInvalidParameters, "public key comment must not contain line breaks")
	}

	sshPub, err := wrap(pub)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(sshPub.Type())
	buf.WriteByte(' ')
	buf.WriteString(base64.StdEncoding.EncodeToString(sshPub.Marshal()))
	buf.WriteByte(' ')
	buf.WriteString(comment)

	return buf.Bytes(), nil
}

// Parse reads a line produced by Encode.
func Parse(line []byte) (ssh.PublicKey, string, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, "", keyerr.Wrap(keyerr.KindEncoding, err, "failed to parse public key")
	}

	return pub, comment, nil
}

// CryptoPublicKey unwraps a parsed SSH key into its crypto/... type.
func CryptoPublicKey(pub ssh.PublicKey) (crypto.PublicKey, error) {
	cpk, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, keyerr.Errorf(keyerr.KindEncoding, "unsupported public key type %s", pub.Type())
	}

	return cpk.CryptoPublicKey(), nil
}

// JWK renders pub as a JSON Web Key for signature use.
func JWK(pub crypto.PublicKey, keyID string) ([]byte, error) {
	var alg jose.SignatureAlgorithm

	switch key := pub.(type) {
	case *rsa.PublicKey:
		alg = jose.RS256

	case *ecdsa.PublicKey:
		switch key.Curve {
		case elliptic.P256():
			alg = jose.ES256
		case elliptic.P384():
			alg = jose.ES384
		case elliptic.P521():
			alg = jose.ES512
		default:
			return nil, keyerr.Errorf(keyerr.KindEncoding, "unsupported curve %s for JWK", key.Curve.Params().Name)
		}

	default:
		return nil, keyerr.Errorf(keyerr.KindEncoding, "unsupported public key type %T for JWK", pub)
	}

	jwk := jose.JSONWebKey{
		Algorithm: string(alg),
		Key:       pub,
		KeyID:     keyID,
		Use:       "sig",
	}

	out, err := json.Marshal(jwk)
	if err != nil {
		return nil, keyerr.Wrap(keyerr.KindEncoding, err, "failed to encode JWK")
	}

	return out, nil
}
