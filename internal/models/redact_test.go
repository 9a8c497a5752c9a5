package models

import (
	"testing"
	"unicode/utf8"

	"github.com/go-playground/assert/v2"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"", ""},
		{"a@example.com", "a@example.com"},
		{"ab@example.com", "a*@example.com"},
		{"alice@example.com", "al***@example.com"},
		{"christopher@example.com", "chr********@example.com"},
		{"not-an-email", "not-an-email"},
		{"@example.com", "@example.com"},
		{"josé@example.com", "jo**@example.com"},
		{"ééé@example.com", "é**@example.com"},
		{"李小龍@example.com", "李**@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := MaskEmail(tt.email)
			assert.Equal(t, got, tt.want)
			assert.Equal(t, utf8.ValidString(got), true)
		})
	}
}

func TestRedact(t *testing.T) {
	alice := &User{ID: "u1", Username: "alice", Email: "alice@example.com", Presence: PresenceOnline}

	own := Redact(alice, "u1").(*User)
	assert.Equal(t, own.Email, "alice@example.com")

	seen := Redact(alice, "u2").(*User)
	assert.Equal(t, seen.Email, "al***@example.com")
	assert.Equal(t, alice.Email, "alice@example.com")
	assert.Equal(t, seen.Validate(), nil)

	post := &Post{ID: "p1", AuthorID: "u1", Body: "hi"}
	assert.Equal(t, Redact(post, "u2"), Record(post))
}
