package security_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/security"
	"taskdeck/internal/security/securitytest"
)

func TestDecryptRoundTrip(t *testing.T) {
	key := securitytest.GenerateKey(t)
	engine := security.NewEngine(key)

	plaintexts := []string{
		"alice,20250615",
		"bob,19991231",
		"x",
		"a payload longer than one AES block to exercise CBC chaining across blocks",
	}

	for _, want := range plaintexts {
		t.Run(want[:min(len(want), 16)], func(t *testing.T) {
			wrapped, payload := securitytest.MintCode(t, &key.PublicKey, want)
			got, err := engine.Decrypt(wrapped, payload)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecryptFailuresCollapseToOneErrorKind(t *testing.T) {
	key := securitytest.GenerateKey(t)
	engine := security.NewEngine(key)
	wrapped, payload := securitytest.MintCode(t, &key.PublicKey, "alice,20250615")

	otherKey := securitytest.GenerateKey(t)
	foreignWrapped, _ := securitytest.MintCode(t, &otherKey.PublicKey, "alice,20250615")

	tests := []struct {
		name             string
		wrapped, payload string
	}{
		{"bad base64 wrapped", "!!!not-base64!!!", payload},
		{"bad base64 payload", wrapped, "!!!not-base64!!!"},
		{"wrapped under foreign key", foreignWrapped, payload},
		{"tampered wrapped", tamperB64(t, wrapped), payload},
		{"tampered payload", wrapped, tamperB64(t, payload)},
		{"payload not block aligned", wrapped, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"empty payload", wrapped, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Decrypt(tt.wrapped, tt.payload)
			assert.ErrorIs(t, err, security.ErrDecryptionFailed,
				"all failure modes must surface the same error kind")
		})
	}
}

// tamperB64 flips one byte of the decoded value and re-encodes
func tamperB64(t *testing.T, s string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecryptRejectsWrongUnwrappedLength(t *testing.T) {
	key := securitytest.GenerateKey(t)
	engine := security.NewEngine(key)

	// Wrap only 40 bytes instead of the required 48
	short := make([]byte, 40)
	wrapped := securitytest.WrapKeyIV(t, &key.PublicKey, short[:32], short[32:40])
	_, payload := securitytest.MintCode(t, &key.PublicKey, "alice,20250615")

	_, err := engine.Decrypt(wrapped, payload)
	assert.ErrorIs(t, err, security.ErrDecryptionFailed)
}

func TestValidatePrivateKey(t *testing.T) {
	key := securitytest.GenerateKey(t)
	assert.NoError(t, security.NewEngine(key).ValidatePrivateKey())
	assert.Error(t, security.NewEngine(nil).ValidatePrivateKey())

	smallKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	assert.Error(t, security.NewEngine(smallKey).ValidatePrivateKey(),
		"only 2048-bit keys are accepted")
}

func TestNewEngineFromFile(t *testing.T) {
	key := securitytest.GenerateKey(t)
	dir := t.TempDir()

	t.Run("pkcs1", func(t *testing.T) {
		path := filepath.Join(dir, "pkcs1.pem")
		writePEM(t, path, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))

		engine, err := security.NewEngineFromFile(path)
		require.NoError(t, err)
		assert.NoError(t, engine.ValidatePrivateKey())
	})

	t.Run("pkcs8", func(t *testing.T) {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		path := filepath.Join(dir, "pkcs8.pem")
		writePEM(t, path, "PRIVATE KEY", der)

		engine, err := security.NewEngineFromFile(path)
		require.NoError(t, err)
		assert.NoError(t, engine.ValidatePrivateKey())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := security.NewEngineFromFile(filepath.Join(dir, "nope.pem"))
		assert.Error(t, err)
	})

	t.Run("garbage file", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
		_, err := security.NewEngineFromFile(path)
		assert.Error(t, err)
	})
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
