package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCE code challenge methods.
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// Code verifier length bounds per RFC 7636 section 4.1.
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// The unreserved character set allowed in a code verifier.
const codeVerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// GenerateCodeVerifier returns a cryptographically random code verifier of
// the given length over the unreserved character alphabet.
func GenerateCodeVerifier(length int) (string, error) {
	if length < MinCodeVerifierLength || length > MaxCodeVerifierLength {
		return "", fmt.Errorf("code verifier length must be between %d and %d, got %d",
			MinCodeVerifierLength, MaxCodeVerifierLength, length)
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	verifier := make([]byte, length)
	for i, b := range raw {
		verifier[i] = codeVerifierCharset[int(b)%len(codeVerifierCharset)]
	}

	return string(verifier), nil
}

// GenerateCodeChallenge derives the code challenge for a verifier.
// S256 produces base64url(SHA-256(verifier)) without padding; plain returns
// the verifier unchanged.
func GenerateCodeChallenge(verifier, method string) (string, error) {
	switch method {
	case CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case CodeChallengeMethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("unsupported code challenge method %q", method)
	}
}

// VerifyCodeChallenge recomputes the challenge from the verifier and compares
// it against the stored challenge in constant time. Unequal lengths
// short-circuit to false.
func VerifyCodeChallenge(verifier, challenge, method string) bool {
	expected, err := GenerateCodeChallenge(verifier, method)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// IsValidCodeVerifier checks the format of a code verifier: length bounds and
// the unreserved character set. It is independent of any stored challenge.
func IsValidCodeVerifier(verifier string) bool {
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return false
	}
	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
