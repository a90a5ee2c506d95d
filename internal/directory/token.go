package directory

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier verifies directory-issued HS256 access tokens locally and
// extracts the principal id and email from the claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the directory's signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(strings.TrimSpace(secret))}
}

// VerifyToken parses and validates a bearer token. The subject claim is the
// principal id; the email claim is required because billing lookups key on it.
func (v *JWTVerifier) VerifyToken(token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing token")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	email, _ := claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("token missing email claim")
	}

	return &Principal{ID: strings.TrimSpace(sub), Email: strings.TrimSpace(email)}, nil
}
