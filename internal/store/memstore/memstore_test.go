package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
)

func TestPutListDoesNotShareValues(t *testing.T) {
	s := New()
	ctx := context.Background()

	post := &models.Post{ID: "p1", AuthorID: "u1", Body: "hello", LikedBy: []string{"u2"}}
	if err := s.Put(ctx, post); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	post.LikedBy[0] = "mutated"

	records, err := s.List(ctx, models.CollectionPosts)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].(*models.Post).LikedBy, []string{"u2"})

	records[0].(*models.Post).Body = "changed"
	again, _ := s.List(ctx, models.CollectionPosts)
	assert.Equal(t, again[0].(*models.Post).Body, "hello")
	assert.Equal(t, s.Puts(), 1)
}

func TestListOrderedByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		s.Put(ctx, &models.Comment{ID: id, PostID: "p1", AuthorID: "u1", Body: id})
	}

	records, _ := s.List(ctx, models.CollectionComments)
	ids := []string{}
	for _, r := range records {
		ids = append(ids, r.RecordID())
	}
	assert.Equal(t, ids, []string{"a", "b", "c"})
}

func TestUnavailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SetAvailable(false)

	err := s.Put(ctx, &models.Post{ID: "p1", AuthorID: "u1", Body: "x"})
	assert.Equal(t, errors.Is(err, errors.ErrStoreUnavailable), true)

	_, err = s.List(ctx, models.CollectionPosts)
	assert.Equal(t, errors.Is(err, errors.ErrStoreUnavailable), true)

	_, err = s.Subscribe(ctx, models.CollectionPosts, func(models.Record) {})
	assert.Equal(t, errors.Is(err, errors.ErrStoreUnavailable), true)

	s.SetAvailable(true)
	assert.Equal(t, s.Put(ctx, &models.Post{ID: "p1", AuthorID: "u1", Body: "x"}), nil)
}

func TestSubscribeDeliversInCommitOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	received := make(chan models.Record, 10)
	sub, err := s.Subscribe(ctx, models.CollectionMessages, func(r models.Record) {
		received <- r
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	s.Put(ctx, &models.Post{ID: "p1", AuthorID: "u1", Body: "ignored"})
	for _, id := range []string{"m1", "m2", "m3"} {
		s.Put(ctx, &models.Message{ID: id, SenderID: "a", ReceiverID: "b", Body: id})
	}

	for _, want := range []string{"m1", "m2", "m3"} {
		select {
		case r := <-received:
			assert.Equal(t, r.RecordID(), want)
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestSubscriptionDroppedWhenUnavailable(t *testing.T) {
	s := New()
	sub, _ := s.Subscribe(context.Background(), models.CollectionPosts, func(models.Record) {})
	assert.Equal(t, s.Subscribers(models.CollectionPosts), 1)

	s.SetAvailable(false)

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected subscription to be dropped")
	}
	assert.Equal(t, errors.Is(sub.Err(), errors.ErrStoreUnavailable), true)
	assert.Equal(t, s.Subscribers(models.CollectionPosts), 0)
}

func TestSubscriptionClosedByContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := s.Subscribe(ctx, models.CollectionPosts, func(models.Record) {})

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected subscription to end with its context")
	}
	assert.Equal(t, sub.Err(), nil)
}
