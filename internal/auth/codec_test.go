package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret")

	identities := []Identity{
		{UserID: "u-1", Username: "alice"},
		{UserID: "42", Username: "bob.smith"},
		{UserID: "u-3", Username: "user with spaces"},
		{UserID: "u-4", Username: "ünïcödé"},
	}

	for _, id := range identities {
		t.Run(id.Username, func(t *testing.T) {
			cred, err := codec.Issue(id)
			require.NoError(t, err)
			require.NotEmpty(t, cred)

			got := codec.Verify(cred)
			require.NotNil(t, got)
			assert.Equal(t, id, *got)
		})
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := NewCodec("test-secret")

	inputs := []string{
		"",
		"not-a-token",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9.e30.invalid",
	}

	for _, in := range inputs {
		assert.Nil(t, codec.Verify(in), "input %q must verify to nil", in)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuer := NewCodec("secret-a")
	verifier := NewCodec("secret-b")

	cred, err := issuer.Issue(Identity{UserID: "u-1", Username: "alice"})
	require.NoError(t, err)

	assert.Nil(t, verifier.Verify(cred))
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	codec := NewCodec("test-secret")
	cred, err := codec.Issue(Identity{UserID: "u-1", Username: "alice"})
	require.NoError(t, err)

	// Flip a character in the payload segment
	tampered := []byte(cred)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	assert.Nil(t, codec.Verify(string(tampered)))
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	// Token signed with "none" must never verify
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		UserID:   "u-1",
		Username: "alice",
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	codec := NewCodec("test-secret")
	assert.Nil(t, codec.Verify(unsigned))
}

func TestVerifyRejectsEmptyIdentityFields(t *testing.T) {
	codec := NewCodec("test-secret")

	cred, err := codec.Issue(Identity{UserID: "", Username: "alice"})
	require.NoError(t, err)
	assert.Nil(t, codec.Verify(cred), "empty user id must not produce a partial identity")

	cred, err = codec.Issue(Identity{UserID: "u-1", Username: ""})
	require.NoError(t, err)
	assert.Nil(t, codec.Verify(cred))
}

func TestCredentialHasNoExpiry(t *testing.T) {
	codec := NewCodec("test-secret")
	cred, err := codec.Issue(Identity{UserID: "u-1", Username: "alice"})
	require.NoError(t, err)

	parsed := &claims{}
	_, _, err = jwt.NewParser().ParseUnverified(cred, parsed)
	require.NoError(t, err)
	assert.Nil(t, parsed.ExpiresAt, "credential lifetime is unbounded")
}
