package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier(64)
	require.NoError(t, err)
	assert.Len(t, verifier, 64)
	assert.True(t, IsValidCodeVerifier(verifier))

	// Two verifiers should never collide.
	other, err := GenerateCodeVerifier(64)
	require.NoError(t, err)
	assert.NotEqual(t, verifier, other)
}

func TestGenerateCodeVerifier_LengthBounds(t *testing.T) {
	for _, length := range []int{MinCodeVerifierLength, MaxCodeVerifierLength} {
		verifier, err := GenerateCodeVerifier(length)
		require.NoError(t, err)
		assert.Len(t, verifier, length)
	}

	_, err := GenerateCodeVerifier(MinCodeVerifierLength - 1)
	assert.Error(t, err)
	_, err = GenerateCodeVerifier(MaxCodeVerifierLength + 1)
	assert.Error(t, err)
}

func TestGenerateCodeChallenge_S256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge, err := GenerateCodeChallenge(verifier, CodeChallengeMethodS256)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
	assert.NotContains(t, challenge, "=")
}

func TestGenerateCodeChallenge_Plain(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge, err := GenerateCodeChallenge(verifier, CodeChallengeMethodPlain)
	require.NoError(t, err)
	assert.Equal(t, verifier, challenge)
}

func TestGenerateCodeChallenge_UnknownMethod(t *testing.T) {
	_, err := GenerateCodeChallenge("whatever", "S512")
	assert.Error(t, err)
}

func TestVerifyCodeChallenge_RoundTrip(t *testing.T) {
	for _, method := range []string{CodeChallengeMethodS256, CodeChallengeMethodPlain} {
		verifier, err := GenerateCodeVerifier(43)
		require.NoError(t, err)
		challenge, err := GenerateCodeChallenge(verifier, method)
		require.NoError(t, err)

		assert.True(t, VerifyCodeChallenge(verifier, challenge, method), method)
	}
}

func TestVerifyCodeChallenge_MutatedVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier(43)
	require.NoError(t, err)
	challenge, err := GenerateCodeChallenge(verifier, CodeChallengeMethodS256)
	require.NoError(t, err)

	// Flip one character of the verifier.
	mutated := []byte(verifier)
	if mutated[0] == 'A' {
		mutated[0] = 'B'
	} else {
		mutated[0] = 'A'
	}

	assert.False(t, VerifyCodeChallenge(string(mutated), challenge, CodeChallengeMethodS256))
	assert.False(t, VerifyCodeChallenge(verifier, challenge, CodeChallengeMethodPlain))
	assert.False(t, VerifyCodeChallenge(verifier, challenge, "S512"))
}

func TestIsValidCodeVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		want     bool
	}{
		{"valid minimum length", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", true},
		{"valid with all special chars", "abcdefghijklmnopqrstuvwxyz0123456789-._~ABCDEFG", true},
		{"too short", "too-short", false},
		{"invalid character", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjX!", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidCodeVerifier(tt.verifier))
		})
	}
}
