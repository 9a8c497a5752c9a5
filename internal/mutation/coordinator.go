// Package mutation turns user intents into whole-record writes.
//
// Every action reads the current value from a mirror snapshot, computes the
// complete next value, validates it, and writes it to the store. The mirror
// is updated with that same value only after the store accepts it; a failed
// write leaves the mirror untouched and is never retried here. Concurrent
// writers of the same record are not detected: whichever write the store
// commits last replaces the others.
package mutation

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
	"github.com/pliu/socialsync/internal/views"
)

const inviteCodeLength = 6

type Coordinator struct {
	store  store.Store
	sink   mirror.Sink
	source mirror.Source

	newID         func() string
	now           func() time.Time
	newInviteCode func() string
}

type Option func(*Coordinator)

func WithIDs(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) { c.now = fn }
}

func WithInviteCodes(fn func() string) Option {
	return func(c *Coordinator) { c.newInviteCode = fn }
}

// New builds a coordinator that writes through st, applies accepted values
// to sink and reads current values from source.
func New(st store.Store, sink mirror.Sink, source mirror.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         st,
		sink:          sink,
		source:        source,
		newID:         func() string { return ulid.Make().String() },
		now:           func() time.Time { return time.Now().UTC().Round(0) },
		newInviteCode: randomInviteCode,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomInviteCode() string {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(code[:inviteCodeLength])
}

// write validates, persists and then applies. The record must not be
// modified after it is passed in.
func (c *Coordinator) write(ctx context.Context, r models.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := c.store.Put(ctx, r); err != nil {
		glog.Warningf("mutation: put %s/%s failed: %v", r.Collection(), r.RecordID(), err)
		return err
	}
	if err := c.sink.Apply(r); err != nil {
		// the store accepted the write; the local copy catches up from the observer
		return err
	}
	glog.V(2).Infof("mutation: wrote %s/%s", r.Collection(), r.RecordID())
	return nil
}

func (c *Coordinator) user(snap *mirror.Snapshot, id string) (*models.User, error) {
	u, ok := snap.User(id)
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "user %s not found", id)
	}
	return u, nil
}

func (c *Coordinator) post(snap *mirror.Snapshot, id string) (*models.Post, error) {
	p, ok := snap.Post(id)
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "post %s not found", id)
	}
	return p, nil
}

func (c *Coordinator) CreatePost(ctx context.Context, authorID, body, mediaRef, mediaType string) (*models.Post, error) {
	p := &models.Post{
		ID:        c.newID(),
		AuthorID:  authorID,
		Body:      strings.TrimSpace(body),
		MediaRef:  mediaRef,
		MediaType: mediaType,
		LikedBy:   []string{},
		CreatedAt: c.now(),
	}
	if err := c.write(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ToggleLike adds userID to the post's likes, or removes it if present,
// and writes the whole post back. Two clients toggling the same post at
// once each write their own view of likedBy and the last write wins.
func (c *Coordinator) ToggleLike(ctx context.Context, postID, userID string) (*models.Post, error) {
	current, err := c.post(c.source.Snapshot(), postID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if models.ContainsID(current.LikedBy, userID) {
		next.LikedBy = models.RemoveID(current.LikedBy, userID)
	} else {
		next.LikedBy = models.AddID(current.LikedBy, userID)
	}

	if err := c.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Coordinator) AddComment(ctx context.Context, postID, authorID, body string) (*models.Comment, error) {
	if _, err := c.post(c.source.Snapshot(), postID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        c.newID(),
		PostID:    postID,
		AuthorID:  authorID,
		Body:      strings.TrimSpace(body),
		CreatedAt: c.now(),
	}
	if err := c.write(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (c *Coordinator) SendMessage(ctx context.Context, senderID, receiverID, body string) (*models.Message, error) {
	m := &models.Message{
		ID:         c.newID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       strings.TrimSpace(body),
		CreatedAt:  c.now(),
	}
	if err := c.write(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead flips a single message to read. Only its receiver may do so.
func (c *Coordinator) MarkRead(ctx context.Context, messageID, currentUserID string) (*models.Message, error) {
	current, ok := c.source.Snapshot().Message(messageID)
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "message %s not found", messageID)
	}
	if current.ReceiverID != currentUserID {
		return nil, errors.New(errors.ErrPermission, "only the receiver can mark a message read")
	}
	if current.Read {
		return current, nil
	}

	next := *current
	next.Read = true
	if err := c.write(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// MarkConversationRead marks every unread message peerID sent to
// currentUserID. It stops at the first failed write and reports how many
// messages were marked before it.
func (c *Coordinator) MarkConversationRead(ctx context.Context, currentUserID, peerID string) (int, error) {
	marked := 0
	for _, m := range views.MessagesBetween(c.source.Snapshot(), currentUserID, peerID) {
		if m.ReceiverID != currentUserID || m.Read {
			continue
		}
		next := *m
		next.Read = true
		if err := c.write(ctx, &next); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (c *Coordinator) AddFriend(ctx context.Context, userID, friendID string) (*models.User, error) {
	return c.updateFriends(ctx, userID, friendID, true)
}

func (c *Coordinator) RemoveFriend(ctx context.Context, userID, friendID string) (*models.User, error) {
	return c.updateFriends(ctx, userID, friendID, false)
}

func (c *Coordinator) updateFriends(ctx context.Context, userID, friendID string, add bool) (*models.User, error) {
	if userID == friendID {
		return nil, errors.New(errors.ErrValidation, "user cannot befriend themselves")
	}

	snap := c.source.Snapshot()
	current, err := c.user(snap, userID)
	if err != nil {
		return nil, err
	}
	if add {
		if _, err := c.user(snap, friendID); err != nil {
			return nil, err
		}
	}
	if models.ContainsID(current.FriendIDs, friendID) == add {
		return current, nil
	}

	next := current.Clone()
	if add {
		next.FriendIDs = models.AddID(current.FriendIDs, friendID)
	} else {
		next.FriendIDs = models.RemoveID(current.FriendIDs, friendID)
	}
	next.UpdatedAt = c.now()

	if err := c.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Coordinator) SetPresence(ctx context.Context, userID string, presence models.Presence) (*models.User, error) {
	if !presence.Valid() {
		return nil, errors.Newf(errors.ErrValidation, "invalid presence %q", presence)
	}
	current, err := c.user(c.source.Snapshot(), userID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Presence = presence
	next.UpdatedAt = c.now()
	if err := c.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateProfile changes the username and avatar. Uniqueness is checked
// against the mirror only; the store server has the final say.
func (c *Coordinator) UpdateProfile(ctx context.Context, userID, username, avatarRef string) (*models.User, error) {
	username = strings.TrimSpace(username)
	snap := c.source.Snapshot()
	current, err := c.user(snap, userID)
	if err != nil {
		return nil, err
	}
	if other, ok := views.UserByUsername(snap, username); ok && other.ID != userID {
		return nil, errors.Newf(errors.ErrDuplicate, "username %q is taken", username)
	}

	next := current.Clone()
	next.Username = username
	next.AvatarRef = avatarRef
	next.UpdatedAt = c.now()
	if err := c.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Coordinator) CreateServer(ctx context.Context, ownerID, name string) (*models.Server, error) {
	s := &models.Server{
		ID:         c.newID(),
		Name:       strings.TrimSpace(name),
		OwnerID:    ownerID,
		InviteCode: c.newInviteCode(),
		MemberIDs:  []string{ownerID},
		CreatedAt:  c.now(),
	}
	if err := c.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Coordinator) JoinServer(ctx context.Context, userID, inviteCode string) (*models.Server, error) {
	current, ok := views.ServerByInviteCode(c.source.Snapshot(), strings.TrimSpace(inviteCode))
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "no server with invite code %q", inviteCode)
	}
	if models.ContainsID(current.MemberIDs, userID) {
		return current, nil
	}

	next := current.Clone()
	next.MemberIDs = models.AddID(current.MemberIDs, userID)
	if err := c.write(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Coordinator) SendServerMessage(ctx context.Context, serverID, authorID, body string) (*models.ServerMessage, error) {
	server, ok := c.source.Snapshot().Server(serverID)
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "server %s not found", serverID)
	}
	if !models.ContainsID(server.MemberIDs, authorID) {
		return nil, errors.New(errors.ErrPermission, "only members can post in a server")
	}

	m := &models.ServerMessage{
		ID:        c.newID(),
		ServerID:  serverID,
		AuthorID:  authorID,
		Body:      strings.TrimSpace(body),
		CreatedAt: c.now(),
	}
	if err := c.write(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
