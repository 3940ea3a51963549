// Package auth implements session credential issuance and
// verification, and the login service backing POST /api/auth/login.
//
// Credentials are HS256-signed JWTs carrying the user ID and username.
// No expiry claim is set: a credential stays valid until the signing
// secret changes. This is a deliberate product choice for the packaged
// desktop build, where the session outlives restarts.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the principal asserted by a credential. It is produced
// by the user-account store and carried only inside the signed token;
// this subsystem never persists it.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// claims binds the identity fields into the JWT claim set
type claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"uname"`
}

// Codec signs and verifies session credentials with a fixed symmetric
// key. Safe for unlimited concurrent use; the key is read-only after
// construction.
type Codec struct {
	signingKey []byte
}

// NewCodec creates a codec with the given signing secret
func NewCodec(secret string) *Codec {
	return &Codec{signingKey: []byte(secret)}
}

// Issue serializes the identity into a signed credential string
func (c *Codec) Issue(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   id.UserID,
		Username: id.Username,
	})
	return token.SignedString(c.signingKey)
}

// Verify validates the credential and recovers the identity it was
// issued for. Returns nil for any malformed, tampered, or
// foreign-keyed input; callers treat nil as "unauthenticated".
func (c *Codec) Verify(credential string) *Identity {
	parsed := &claims{}
	token, err := jwt.ParseWithClaims(credential, parsed,
		func(t *jwt.Token) (interface{}, error) {
			return c.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil
	}
	if parsed.UserID == "" || parsed.Username == "" {
		return nil
	}
	return &Identity{UserID: parsed.UserID, Username: parsed.Username}
}
