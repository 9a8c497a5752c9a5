package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pliu/socialsync/internal/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("01HX0000000000000000000000")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := VerifyToken(token)
	assert.Equal(t, err, nil)
	assert.Equal(t, userID, "01HX0000000000000000000000")
}

func TestVerifyTokenRejects(t *testing.T) {
	valid, _ := IssueToken("u1")

	original := SecretKey
	SecretKey = []byte("another-secret")
	forged, _ := IssueToken("u1")
	SecretKey = original

	ttl := TokenTTL
	TokenTTL = -time.Minute
	expired, _ := IssueToken("u1")
	TokenTTL = ttl

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", forged},
		{"expired", expired},
		{"tampered", tamper(valid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyToken(tt.token)
			assert.Equal(t, errors.Is(err, errors.ErrPermission), true)
		})
	}
}

// tamper changes the first character of the signature segment.
func tamper(token string) string {
	parts := strings.Split(token, ".")
	sig := parts[2]
	c := "A"
	if sig[0] == 'A' {
		c = "B"
	}
	parts[2] = c + sig[1:]
	return strings.Join(parts, ".")
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("password123")
	assert.Equal(t, err, nil)
	assert.NotEqual(t, hash, "password123")

	assert.Equal(t, CheckPassword(hash, "password123"), true)
	assert.Equal(t, CheckPassword(hash, "password124"), false)
	assert.Equal(t, CheckPassword("not-a-hash", "password123"), false)
}
