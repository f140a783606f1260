package primitives

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// ErrInvalidCiphertext is returned when a ciphertext is malformed for CBC
// decryption (wrong block alignment, empty, or bad padding).
var ErrInvalidCiphertext = fmt.Errorf("primitives: invalid ciphertext")

// EncryptAESCBC encrypts plaintext with AES-256 in CBC mode using PKCS#7
// padding. key must be 32 bytes and iv 16 bytes.
func EncryptAESCBC(plaintext []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("primitives: aes cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptAESCBC decrypts ciphertext produced by EncryptAESCBC.
func DecryptAESCBC(ciphertext []byte, key [32]byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("primitives: aes cipher: %w", err)
	}

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrInvalidCiphertext
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, ErrInvalidCiphertext
	}
	return data[:len(data)-padLen], nil
}
