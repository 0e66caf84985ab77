// Package crypto holds the credential-hashing and key-derivation primitives
// shared by the auth, dispatch-adjacent OAuth, and relay subsystems. Raw key
// material is never persisted (spec §3); only digests and derived keys are.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// apiKeySalt and oauthSalt are fixed, non-secret salts per spec §4.1 —
	// the KDF input that varies is the key/user material itself, not the salt.
	apiKeySalt    = "fleetwire.controlplane.apikey.v1"
	oauthSalt     = "fleetwire.controlplane.oauth.v1"
	pbkdf2Rounds  = 100_000
	derivedKeyLen = 32
)

// SHA256Hex returns the lowercase hex SHA-256 digest of s, used as the
// lookup key for API keys, OAuth codes, and OAuth tokens (spec §3: "Keyed by
// the hex digest of the opaque key").
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DeriveAPIKeyPayloadKey derives the symmetric payload-encryption key for an
// API key credential: PBKDF2-SHA256(key, fixed salt, 100_000, 32).
func DeriveAPIKeyPayloadKey(rawKey string) []byte {
	return pbkdf2.Key([]byte(rawKey), []byte(apiKeySalt), pbkdf2Rounds, derivedKeyLen, sha256.New)
}

// DeriveOAuthPayloadKey derives the symmetric payload-encryption key for an
// OAuth access-token context: PBKDF2-SHA256(userID, fixed OAuth salt,
// 100_000, 32).
func DeriveOAuthPayloadKey(userID string) []byte {
	return pbkdf2.Key([]byte(userID), []byte(oauthSalt), pbkdf2Rounds, derivedKeyLen, sha256.New)
}

// ConstantTimeEqual compares two strings without leaking timing information,
// used anywhere a caller-supplied secret is compared against a stored value.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// randomToken returns n cryptographically random bytes, base32-encoded
// (Crockford-ish, no padding) so generated credentials are safe to embed in
// URLs and are visually unambiguous.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// GenerateOpaqueKey creates a new opaque API key with the `cb_` prefix
// (spec §4.1 scheme detection).
func GenerateOpaqueKey() (string, error) {
	tok, err := randomToken(24)
	if err != nil {
		return "", err
	}
	return "cb_" + tok, nil
}

// GenerateClientSecret creates a one-shot confidential-client secret with
// the `cbs_` prefix (spec §4.7 DCR). Only its digest is ever stored.
func GenerateClientSecret() (string, error) {
	tok, err := randomToken(24)
	if err != nil {
		return "", err
	}
	return "cbs_" + tok, nil
}

// GenerateRefreshToken creates a refresh token with the `cbr_` prefix
// (spec §4.7 refresh grant prefix check).
func GenerateRefreshToken() (string, error) {
	tok, err := randomToken(32)
	if err != nil {
		return "", err
	}
	return "cbr_" + tok, nil
}

// GenerateAccessToken creates an OAuth access token with the `cbo_` prefix
// (spec §4.1 scheme detection).
func GenerateAccessToken() (string, error) {
	tok, err := randomToken(32)
	if err != nil {
		return "", err
	}
	return "cbo_" + tok, nil
}

// GenerateAuthorizationCode mints a 32-byte authorization code, returned
// plaintext to the caller but stored only as its SHA-256 hash (spec §4.7:
// "atomically mint a 32-byte authorization code (keyed by SHA-256)").
func GenerateAuthorizationCode() (string, error) {
	return randomToken(32)
}

// ErrPKCEMismatch is returned by VerifyPKCE when the presented verifier does
// not reproduce the stored challenge.
var ErrPKCEMismatch = errors.New("crypto: pkce verifier does not match challenge")

// ChallengeFromVerifier computes the S256 PKCE challenge for a verifier:
// base64url(sha256(verifier)), no padding (spec GLOSSARY "PKCE S256").
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a verifier against a stored S256 challenge.
func VerifyPKCE(verifier, challenge string) error {
	if ChallengeFromVerifier(verifier) != challenge {
		return ErrPKCEMismatch
	}
	return nil
}
