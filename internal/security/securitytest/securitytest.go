// Package securitytest provides the encryption half of the unlock code
// protocol for tests: wrapping a key/IV pair with the public key and
// encrypting payloads with AES-256-CBC. Production code only ever
// decrypts.
package securitytest

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const asciiAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateKey creates a 2048-bit RSA keypair for tests
func GenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// RandomASCIIKeyIV produces a printable 32-byte AES key and 16-byte IV,
// matching the minting side's raw-ASCII convention.
func RandomASCIIKeyIV(t *testing.T) (key, iv []byte) {
	t.Helper()
	buf := make([]byte, 48)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = asciiAlphabet[int(buf[i])%len(asciiAlphabet)]
	}
	return buf[:32], buf[32:]
}

// WrapKeyIV encrypts key||iv with RSA-OAEP(SHA-256) under pub and
// returns the base64 form.
func WrapKeyIV(t *testing.T, pub *rsa.PublicKey, key, iv []byte) string {
	t.Helper()
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, append(append([]byte{}, key...), iv...), nil)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(wrapped)
}

// EncryptPayload AES-256-CBC encrypts plaintext with PKCS#7 padding
// and returns the base64 form.
func EncryptPayload(t *testing.T, key, iv []byte, plaintext string) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// MintCode produces a complete two-part unlock code for plaintext
// under pub, using a fresh ASCII key/IV.
func MintCode(t *testing.T, pub *rsa.PublicKey, plaintext string) (wrapped, payload string) {
	t.Helper()
	key, iv := RandomASCIIKeyIV(t)
	return WrapKeyIV(t, pub, key, iv), EncryptPayload(t, key, iv, plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}
