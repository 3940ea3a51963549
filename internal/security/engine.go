// Package security implements the hybrid decryption protocol behind
// unlock codes: an RSA-OAEP wrapped AES key/IV pair protecting an
// AES-256-CBC payload.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecryptionFailed is the single error kind surfaced for every
// cryptographic failure in the engine. Unwrap failures and payload
// failures are deliberately indistinguishable so a caller probing with
// crafted inputs learns nothing about which stage rejected them.
var ErrDecryptionFailed = errors.New("security: decryption failed")

const (
	// wrappedLen is the exact plaintext length of the unwrapped RSA
	// block: a 32-byte AES-256 key followed by a 16-byte IV. Both are
	// raw ASCII characters on the minting side, not binary.
	wrappedLen = 48
	keyLen     = 32
)

// Engine recovers unlock code plaintexts using the installation's
// private RSA key. The key is read-only after construction and safe
// for unlimited concurrent use.
type Engine struct {
	privateKey *rsa.PrivateKey
}

// NewEngine creates an engine around an already-parsed private key
func NewEngine(key *rsa.PrivateKey) *Engine {
	return &Engine{privateKey: key}
}

// NewEngineFromFile loads the PEM private key at path and builds an
// engine. Fails fast on unreadable or unparseable key material.
func NewEngineFromFile(path string) (*Engine, error) {
	key, err := LoadPrivateKeyFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: loading private key: %w", err)
	}
	return &Engine{privateKey: key}, nil
}

// ValidatePrivateKey checks the configured key material without
// performing any decryption. Used by startup and health checks.
func (e *Engine) ValidatePrivateKey() error {
	if e.privateKey == nil {
		return errors.New("security: private key not configured")
	}
	if err := e.privateKey.Validate(); err != nil {
		return fmt.Errorf("security: private key invalid: %w", err)
	}
	if size := e.privateKey.Size() * 8; size != 2048 {
		return fmt.Errorf("security: unexpected private key size %d bits, want 2048", size)
	}
	return nil
}

// Decrypt recovers the plaintext of an unlock code. wrappedKeyAndIV is
// the base64 RSA-OAEP(SHA-256) encryption of the 48-byte key+IV block;
// payload is the base64 AES-256-CBC ciphertext. Every failure mode
// returns ErrDecryptionFailed.
func (e *Engine) Decrypt(wrappedKeyAndIV, payload string) (string, error) {
	if e.privateKey == nil {
		return "", ErrDecryptionFailed
	}

	wrapped, err := base64.StdEncoding.DecodeString(wrappedKeyAndIV)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	keyAndIV, err := rsa.DecryptOAEP(sha256.New(), nil, e.privateKey, wrapped, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(keyAndIV) != wrappedLen {
		return "", ErrDecryptionFailed
	}

	plaintext, err := decryptCBC(keyAndIV[:keyLen], keyAndIV[keyLen:], ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// decryptCBC performs AES-256-CBC decryption and strips PKCS#7
// padding.
func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext not block aligned")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return stripPKCS7(plaintext)
}

// stripPKCS7 validates and removes PKCS#7 padding
func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-pad], nil
}
