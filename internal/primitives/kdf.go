package primitives

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HKDFExpand fills out with key material derived from secret, salt and info
// using HKDF-SHA256, returning an error instead of a zero-filled key on
// short reads.
func HKDFExpand(secret, salt, info []byte, out []byte) error {
	reader := hkdf.New(sha256.New, secret, salt, info)
	if _, err := io.ReadFull(reader, out); err != nil {
		return fmt.Errorf("primitives: hkdf expand: %w", err)
	}
	return nil
}

// HMACSHA256 returns HMAC-SHA-256(key, data).
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// PBKDF2Key derives an AES key from a user passphrase. Used by the store to
// turn an optional pickle passphrase into a pickling key (§4.5/§6).
func PBKDF2Key(passphrase string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
}
