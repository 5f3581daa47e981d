package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// KeySize is the required AES-256-GCM key length in bytes.
const KeySize = 32

func Sha256Hash(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Sha256Hex returns the lowercase hex encoding of the SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	return hex.EncodeToString(Sha256Hash(data))
}

// https://golang.org/src/crypto/cipher/example_test.go
func EncryptWithAAD(plaintext []byte, key []byte, aad string) (string, error) {

	if len(key) != KeySize {
		return "", fmt.Errorf("EncryptWithAAD key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)

	if err != nil {
		return "", fmt.Errorf("EncryptWithAAD new cipher error: %w", err)
	}

	gcm, err := cipher.NewGCM(block)

	if err != nil {
		return "", fmt.Errorf("EncryptWithAAD new gcm error: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())

	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("EncryptWithAAD reader error: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, []byte(aad))

	return hex.EncodeToString(ciphertext), nil
}

// DecryptWithAAD reverses EncryptWithAAD. Decryption fails if the additional
// authenticated data does not match the value the ciphertext was sealed with.
func DecryptWithAAD(encoded string, key []byte, aad string) ([]byte, error) {

	if encoded == "" {
		return nil, fmt.Errorf("DecryptWithAAD empty string")
	}

	if len(key) != KeySize {
		return nil, fmt.Errorf("DecryptWithAAD key must be %d bytes, got %d", KeySize, len(key))
	}

	data, err := hex.DecodeString(encoded)

	if err != nil {
		return nil, fmt.Errorf("DecryptWithAAD decode error: %w", err)
	}

	block, err := aes.NewCipher(key)

	if err != nil {
		return nil, fmt.Errorf("DecryptWithAAD new cipher error: %w", err)
	}

	gcm, err := cipher.NewGCM(block)

	if err != nil {
		return nil, fmt.Errorf("DecryptWithAAD new gcm error: %w", err)
	}

	nonceSize := gcm.NonceSize()

	if len(data) < nonceSize {
		return nil, fmt.Errorf("DecryptWithAAD ciphertext shorter than nonce")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(aad))

	if err != nil {
		return nil, fmt.Errorf("DecryptWithAAD open gcm error: %w", err)
	}

	return plaintext, nil
}
