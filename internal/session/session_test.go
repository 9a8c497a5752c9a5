package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pliu/socialsync/internal/errors"
)

func stores(t *testing.T) map[string]Store {
	sqlite, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestSaveLoadClear(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Load(ctx)
			assert.Equal(t, errors.Is(err, errors.ErrNotFound), true)

			saved := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
			err = st.Save(ctx, Session{UserID: "u1", Username: "alice", Token: "tok-1", SavedAt: saved})
			assert.Equal(t, err, nil)

			sess, err := st.Load(ctx)
			assert.Equal(t, err, nil)
			assert.Equal(t, sess.UserID, "u1")
			assert.Equal(t, sess.Token, "tok-1")
			assert.Equal(t, sess.SavedAt.Equal(saved), true)

			// a second login replaces the first
			st.Save(ctx, Session{UserID: "u2", Username: "bob", Token: "tok-2"})
			sess, _ = st.Load(ctx)
			assert.Equal(t, sess.Username, "bob")
			assert.Equal(t, sess.SavedAt.IsZero(), false)

			assert.Equal(t, st.Clear(ctx), nil)
			_, err = st.Load(ctx)
			assert.Equal(t, errors.Is(err, errors.ErrNotFound), true)

			// clearing twice is fine
			assert.Equal(t, st.Clear(ctx), nil)
		})
	}
}

func TestSaveRequiresUser(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Save(context.Background(), Session{Token: "orphan"})
			assert.Equal(t, errors.Is(err, errors.ErrValidation), true)
		})
	}
}

func TestSessionSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	ctx := context.Background()

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	st.Save(ctx, Session{UserID: "u1", Username: "alice", Token: "tok"})
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()

	sess, err := st.Load(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, sess.Username, "alice")
}
