package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pliu/socialsync/internal/errors"
)

// SecretKey signs session tokens. The server replaces it from configuration
// at startup.
var SecretKey = []byte("dev-secret-change-me")

var TokenTTL = 24 * time.Hour

// IssueToken returns a signed token whose subject is userID.
func IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(SecretKey)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternal, "sign token", err)
	}
	return signed, nil
}

// VerifyToken checks the signature and expiry and returns the subject.
func VerifyToken(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return SecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.Wrap(errors.ErrPermission, "invalid token", err)
	}
	if claims.Subject == "" {
		return "", errors.New(errors.ErrPermission, "token has no subject")
	}
	return claims.Subject, nil
}
