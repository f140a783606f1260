package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// pbkdf2Iterations matches the original_source reference implementation's
// pickle key derivation cost.
const pbkdf2Iterations = 200_000

const saltSize = 16

// pickle encrypts plaintext for storage. With a non-empty passphrase it is
// AES-CBC-encrypted under a PBKDF2-derived key, salt and IV prepended;
// without one it is stored as plain base64, matching spec §6.
func pickle(plaintext []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return base64.StdEncoding.EncodeToString(plaintext), nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("store: generate pickle salt: %w", err)
	}
	var iv [16]byte
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return "", fmt.Errorf("store: generate pickle iv: %w", err)
	}

	var key [32]byte
	copy(key[:], primitives.PBKDF2Key(passphrase, salt, pbkdf2Iterations))

	ciphertext, err := primitives.EncryptAESCBC(plaintext, key, iv)
	if err != nil {
		return "", fmt.Errorf("store: encrypt pickle: %w", err)
	}

	blob := append(append(salt, iv[:]...), ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// unpickle reverses pickle.
func unpickle(encoded string, passphrase string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if passphrase == "" {
		return blob, nil
	}

	if len(blob) < saltSize+16 {
		return nil, fmt.Errorf("store: pickle too short: %w", ErrCorrupt)
	}
	salt := blob[:saltSize]
	var iv [16]byte
	copy(iv[:], blob[saltSize:saltSize+16])
	ciphertext := blob[saltSize+16:]

	var key [32]byte
	copy(key[:], primitives.PBKDF2Key(passphrase, salt, pbkdf2Iterations))

	plaintext, err := primitives.DecryptAESCBC(ciphertext, key, iv)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt pickle (wrong passphrase?): %w", ErrCorrupt)
	}
	return plaintext, nil
}
