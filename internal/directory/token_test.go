package directory

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-signing-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "u-42",
		"email": "teacher@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", p.ID)
	assert.Equal(t, "teacher@example.com", p.Email)
}

func TestVerifyToken_Failures(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{
			"wrong secret",
			signToken(t, "other-secret", jwt.MapClaims{
				"sub":   "u-42",
				"email": "teacher@example.com",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			"expired",
			signToken(t, testSecret, jwt.MapClaims{
				"sub":   "u-42",
				"email": "teacher@example.com",
				"exp":   time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			"missing subject",
			signToken(t, testSecret, jwt.MapClaims{
				"email": "teacher@example.com",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			"missing email",
			signToken(t, testSecret, jwt.MapClaims{
				"sub": "u-42",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := v.VerifyToken(tc.token)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestVerifyToken_RejectsUnsignedAlg(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":   "u-42",
		"email": "teacher@example.com",
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.VerifyToken(signed)
	assert.Error(t, err)
}
