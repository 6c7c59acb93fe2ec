// Package signature verifies gateway notifications signed with the brand's
// RSA private key.
package signature

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
)

// Verify reports whether signatureB64 is a valid sha256WithRSAEncryption
// signature of rawBody under publicKeyPEM. Every failure, including a malformed
// key or signature, yields false.
func Verify(rawBody []byte, signatureB64 string, publicKeyPEM string) bool {
	signatureB64 = strings.TrimSpace(signatureB64)
	if signatureB64 == "" || len(rawBody) == 0 {
		return false
	}

	publicKey := ParsePublicKey(publicKeyPEM)
	if publicKey == nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(sig) == 0 {
		return false
	}

	hash := sha256.Sum256(rawBody)
	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hash[:], sig) == nil
}

// ParsePublicKey decodes a PKIX or PKCS#1 RSA public key. It returns nil when
// the input is not a usable RSA key.
func ParsePublicKey(publicKeyPEM string) *rsa.PublicKey {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil {
		return nil
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil
		}
		return rsaPub
	case "RSA PUBLIC KEY":
		rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil
		}
		return rsaPub
	default:
		return nil
	}
}
