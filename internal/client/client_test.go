package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pliu/socialsync/internal/config"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/observer"
	"github.com/pliu/socialsync/internal/session"
	"github.com/pliu/socialsync/internal/store"
	"github.com/pliu/socialsync/internal/store/memstore"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func testConfig(mode config.TransportMode) *config.Config {
	return &config.Config{
		TransportMode:  mode,
		PollInterval:   10 * time.Millisecond,
		SubscribeRetry: 10 * time.Millisecond,
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func put(t *testing.T, st *memstore.Store, records ...models.Record) {
	t.Helper()
	for _, r := range records {
		if err := st.Put(context.Background(), r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
}

func user(id string) *models.User {
	return &models.User{ID: id, Username: id, Email: id + "@example.com", Presence: models.PresenceOnline}
}

func started(t *testing.T, st *memstore.Store, mode config.TransportMode, userID string) *Client {
	t.Helper()
	return startedWith(t, testConfig(mode), st, userID)
}

func startedWith(t *testing.T, cfg *config.Config, st store.Store, userID string) *Client {
	t.Helper()
	c := New(cfg, st, session.NewMemoryStore())
	if err := c.Login(context.Background(), session.Session{UserID: userID, Username: userID, Token: "tok"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestStartRequiresSession(t *testing.T) {
	c := New(testConfig(config.TransportPush), memstore.New(), session.NewMemoryStore())
	err := c.Start(context.Background())
	assert.Equal(t, errors.Is(err, errors.ErrSessionClosed), true)
	assert.Equal(t, c.State(), observer.Idle)

	_, err = c.Chats()
	assert.Equal(t, errors.Is(err, errors.ErrSessionClosed), true)
}

func TestRemoteChangesReachViews(t *testing.T) {
	for _, mode := range []config.TransportMode{config.TransportPush, config.TransportPoll} {
		t.Run(string(mode), func(t *testing.T) {
			st := memstore.New()
			put(t, st, user("alice"), user("bob"))

			c := started(t, st, mode, "alice")
			eventually(t, func() bool { return c.Snapshot().Len(models.CollectionUsers) == 2 })

			// another client writes
			put(t, st, &models.Post{ID: "p1", AuthorID: "bob", Body: "hi", CreatedAt: epoch})
			eventually(t, func() bool { return len(c.Feed()) == 1 })
			assert.Equal(t, c.Feed()[0].AuthorUsername, "bob")

			me, ok := c.Me()
			assert.Equal(t, ok, true)
			assert.Equal(t, me.Username, "alice")
		})
	}
}

func TestActionsApplyThroughTheLoop(t *testing.T) {
	st := memstore.New()
	put(t, st, user("alice"), user("bob"))
	c := started(t, st, config.TransportPush, "alice")
	ctx := context.Background()
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	p, err := c.CreatePost(ctx, "first!", "", "")
	assert.Equal(t, err, nil)
	assert.Equal(t, p.AuthorID, "alice")

	liked, err := c.ToggleLike(ctx, p.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, liked.LikedBy, []string{"alice"})

	_, err = c.SendMessage(ctx, "bob", "hello bob")
	assert.Equal(t, err, nil)

	thread, err := c.Thread("bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(thread), 1)

	u, err := c.AddFriend(ctx, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, u.FriendIDs, []string{"bob"})

	friends, _ := c.Friends()
	assert.Equal(t, len(friends), 1)

	s, err := c.CreateServer(ctx, "gophers")
	assert.Equal(t, err, nil)
	servers, _ := c.Servers()
	assert.Equal(t, len(servers), 1)

	_, err = c.SendServerMessage(ctx, s.ID, "welcome")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(c.ServerLog(s.ID)), 1)
}

// heldPushes delays pushed records while held, so a client keeps acting on
// a stale mirror for as long as the test wants.
type heldPushes struct {
	*memstore.Store

	mu   sync.Mutex
	gate chan struct{}
}

func (h *heldPushes) hold() {
	h.mu.Lock()
	h.gate = make(chan struct{})
	h.mu.Unlock()
}

func (h *heldPushes) release() {
	h.mu.Lock()
	close(h.gate)
	h.gate = nil
	h.mu.Unlock()
}

func (h *heldPushes) Subscribe(ctx context.Context, c models.Collection, handler func(models.Record)) (store.Subscription, error) {
	return h.Store.Subscribe(ctx, c, func(r models.Record) {
		h.mu.Lock()
		gate := h.gate
		h.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
			}
		}
		handler(r)
	})
}

// X and Y both see likedBy=[] and toggle. Each writes the whole post, so
// Y's later write drops X's like, and both mirrors settle on [Y].
func TestConcurrentToggleMirrorsSettleOnLastWrite(t *testing.T) {
	for _, mode := range []config.TransportMode{config.TransportPush, config.TransportPoll} {
		t.Run(string(mode), func(t *testing.T) {
			base := memstore.New()
			put(t, base, user("X"), user("Y"),
				&models.Post{ID: "p1", AuthorID: "X", Body: "hi", LikedBy: []string{}, CreatedAt: epoch})
			ctx := context.Background()

			x := started(t, base, mode, "X")

			// Y learns nothing new until the test lets it
			var y *Client
			held := &heldPushes{Store: base}
			if mode == config.TransportPush {
				y = startedWith(t, testConfig(mode), held, "Y")
				held.hold()
			} else {
				cfg := testConfig(mode)
				cfg.PollInterval = time.Hour
				y = startedWith(t, cfg, base, "Y")
			}

			for _, c := range []*Client{x, y} {
				p, ok := c.Snapshot().Post("p1")
				assert.Equal(t, ok, true)
				assert.Equal(t, p.LikedBy, []string{})
			}

			if _, err := x.ToggleLike(ctx, "p1"); err != nil {
				t.Fatalf("ToggleLike failed: %v", err)
			}
			if _, err := y.ToggleLike(ctx, "p1"); err != nil {
				t.Fatalf("ToggleLike failed: %v", err)
			}

			if mode == config.TransportPush {
				held.release()
			} else if err := y.Sync(ctx); err != nil {
				t.Fatalf("Sync failed: %v", err)
			}

			for _, c := range []*Client{x, y} {
				eventually(t, func() bool {
					p, ok := c.Snapshot().Post("p1")
					return ok && len(p.LikedBy) == 1 && p.LikedBy[0] == "Y"
				})
			}
			p, _ := x.Snapshot().Post("p1")
			assert.Equal(t, p.LikedBy, []string{"Y"})
		})
	}
}

func TestChatsForCurrentUser(t *testing.T) {
	st := memstore.New()
	put(t, st, user("alice"), user("bob"),
		&models.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Body: "one", CreatedAt: epoch},
		&models.Message{ID: "m2", SenderID: "bob", ReceiverID: "alice", Body: "two", CreatedAt: epoch.Add(time.Second)},
	)
	c := started(t, st, config.TransportPoll, "alice")
	ctx := context.Background()
	c.Sync(ctx)

	chats, err := c.Chats()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(chats), 1)
	assert.Equal(t, chats[0].UnreadCount, 2)
	assert.Equal(t, chats[0].LastMessageBody, "two")

	n, err := c.MarkConversationRead(ctx, "bob")
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 2)

	chats, _ = c.Chats()
	assert.Equal(t, chats[0].UnreadCount, 0)
}

func TestWritesAreSerialized(t *testing.T) {
	st := memstore.New()
	var posts []models.Record
	for i := 0; i < 50; i++ {
		posts = append(posts, &models.Post{ID: fmt.Sprintf("p%02d", i), AuthorID: "alice", Body: "x", CreatedAt: epoch})
	}
	put(t, st, posts...)

	c := started(t, st, config.TransportPush, "alice")

	var wg sync.WaitGroup
	for _, p := range posts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Apply(p); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, c.Snapshot().Len(models.CollectionPosts), 50)
}

func TestChangesAreReported(t *testing.T) {
	c := started(t, memstore.New(), config.TransportPush, "alice")

	c.Apply(user("carol"))

	select {
	case col := <-c.Changes():
		assert.Equal(t, col, models.CollectionUsers)
	case <-time.After(time.Second):
		t.Fatal("no change reported")
	}
}

func TestWritesAfterCloseReportSessionClosed(t *testing.T) {
	st := memstore.New()
	c := started(t, st, config.TransportPush, "alice")
	c.Close()

	assert.Equal(t, errors.Is(c.Apply(user("carol")), errors.ErrSessionClosed), true)
	assert.Equal(t, c.State(), observer.Idle)

	// the put already happened; only the local apply is refused
	puts := st.Puts()
	_, err := c.CreatePost(context.Background(), "too late", "", "")
	assert.Equal(t, errors.Is(err, errors.ErrSessionClosed), true)
	assert.Equal(t, st.Puts(), puts+1)
	assert.Equal(t, len(c.Feed()), 0)

	// closing again is harmless
	c.Close()
}

func TestLogoutAndResume(t *testing.T) {
	st := memstore.New()
	put(t, st, user("alice"))
	sessions := session.NewMemoryStore()
	ctx := context.Background()

	c := New(testConfig(config.TransportPush), st, sessions)
	c.Login(ctx, session.Session{UserID: "alice", Username: "alice", Token: "tok"})
	c.Start(ctx)
	c.Sync(ctx)
	assert.Equal(t, c.Snapshot().Len(models.CollectionUsers), 1)
	c.Close()

	// a new process on the same device picks the session back up
	again := New(testConfig(config.TransportPush), st, sessions)
	sess, err := again.Resume(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, sess.UserID, "alice")
	again.Start(ctx)
	again.Sync(ctx)
	assert.Equal(t, again.State(), observer.Subscribed)

	assert.Equal(t, again.Logout(ctx), nil)
	assert.Equal(t, again.Snapshot().Len(models.CollectionUsers), 0)
	_, err = sessions.Load(ctx)
	assert.Equal(t, errors.Is(err, errors.ErrNotFound), true)
	_, err = again.Session()
	assert.Equal(t, errors.Is(err, errors.ErrSessionClosed), true)

	_, err = New(testConfig(config.TransportPush), st, sessions).Resume(ctx)
	assert.Equal(t, errors.Is(err, errors.ErrNotFound), true)
}
