package models

import (
	"strings"
	"time"

	"github.com/pliu/socialsync/internal/errors"
)

// Collection names a shared set of records. Every record lives in exactly
// one collection and is keyed by its ID within it.
type Collection string

const (
	CollectionUsers          Collection = "users"
	CollectionPosts          Collection = "posts"
	CollectionComments       Collection = "comments"
	CollectionMessages       Collection = "messages"
	CollectionServers        Collection = "servers"
	CollectionServerMessages Collection = "server_messages"
)

// Collections lists every collection in the order snapshots are applied.
var Collections = []Collection{
	CollectionUsers,
	CollectionPosts,
	CollectionComments,
	CollectionMessages,
	CollectionServers,
	CollectionServerMessages,
}

// ParseCollection validates a collection name coming off the wire.
func ParseCollection(name string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == name {
			return c, nil
		}
	}
	return "", errors.Newf(errors.ErrValidation, "unknown collection %q", name)
}

// Record is a whole value stored in a collection. Records are replaced as a
// unit; there is no field-level patch. Once handed to the mirror or a store
// a record must not be modified, callers Clone first.
type Record interface {
	RecordID() string
	Collection() Collection
	Validate() error
}

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceIdle    Presence = "idle"
	PresenceOffline Presence = "offline"
)

func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceIdle, PresenceOffline:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarRef string    `json:"avatar_ref,omitempty"`
	FriendIDs []string  `json:"friend_ids"`
	Presence  Presence  `json:"presence"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) RecordID() string       { return u.ID }
func (u *User) Collection() Collection { return CollectionUsers }

func (u *User) Clone() *User {
	c := *u
	c.FriendIDs = append(make([]string, 0, len(u.FriendIDs)), u.FriendIDs...)
	return &c
}

func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New(errors.ErrValidation, "user id is required")
	}
	if strings.TrimSpace(u.Username) == "" {
		return errors.New(errors.ErrValidation, "username is required")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.Newf(errors.ErrValidation, "invalid email %q", u.Email)
	}
	if ContainsID(u.FriendIDs, u.ID) {
		return errors.New(errors.ErrValidation, "user cannot befriend themselves")
	}
	if !u.Presence.Valid() {
		return errors.Newf(errors.ErrValidation, "invalid presence %q", u.Presence)
	}
	return nil
}

type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	LikedBy   []string  `json:"liked_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Post) RecordID() string       { return p.ID }
func (p *Post) Collection() Collection { return CollectionPosts }

func (p *Post) Clone() *Post {
	c := *p
	c.LikedBy = append(make([]string, 0, len(p.LikedBy)), p.LikedBy...)
	return &c
}

func (p *Post) Validate() error {
	if p.ID == "" || p.AuthorID == "" {
		return errors.New(errors.ErrValidation, "post id and author are required")
	}
	if strings.TrimSpace(p.Body) == "" && p.MediaRef == "" {
		return errors.New(errors.ErrValidation, "post needs a body or media")
	}
	return nil
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) RecordID() string       { return c.ID }
func (c *Comment) Collection() Collection { return CollectionComments }

func (c *Comment) Validate() error {
	if c.ID == "" || c.PostID == "" || c.AuthorID == "" {
		return errors.New(errors.ErrValidation, "comment id, post and author are required")
	}
	if strings.TrimSpace(c.Body) == "" {
		return errors.New(errors.ErrValidation, "comment body is required")
	}
	return nil
}

// Message is a direct message. The unordered pair {SenderID, ReceiverID}
// identifies the conversation; only the receiver flips Read.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Read       bool      `json:"read"`
}

func (m *Message) RecordID() string       { return m.ID }
func (m *Message) Collection() Collection { return CollectionMessages }

func (m *Message) Validate() error {
	if m.ID == "" || m.SenderID == "" || m.ReceiverID == "" {
		return errors.New(errors.ErrValidation, "message id, sender and receiver are required")
	}
	if m.SenderID == m.ReceiverID {
		return errors.New(errors.ErrValidation, "cannot message yourself")
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New(errors.ErrValidation, "message body is required")
	}
	return nil
}

// Peer returns the other participant of the conversation as seen by userID.
func (m *Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is a participant.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Server is a group chat room joined through an invite code.
type Server struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	InviteCode string    `json:"invite_code"`
	MemberIDs  []string  `json:"member_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) RecordID() string       { return s.ID }
func (s *Server) Collection() Collection { return CollectionServers }

func (s *Server) Clone() *Server {
	c := *s
	c.MemberIDs = append(make([]string, 0, len(s.MemberIDs)), s.MemberIDs...)
	return &c
}

func (s *Server) Validate() error {
	if s.ID == "" || s.OwnerID == "" {
		return errors.New(errors.ErrValidation, "server id and owner are required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New(errors.ErrValidation, "server name is required")
	}
	if !ContainsID(s.MemberIDs, s.OwnerID) {
		return errors.New(errors.ErrValidation, "server owner must be a member")
	}
	return nil
}

type ServerMessage struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"server_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *ServerMessage) RecordID() string       { return m.ID }
func (m *ServerMessage) Collection() Collection { return CollectionServerMessages }

func (m *ServerMessage) Validate() error {
	if m.ID == "" || m.ServerID == "" || m.AuthorID == "" {
		return errors.New(errors.ErrValidation, "server message id, server and author are required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New(errors.ErrValidation, "message body is required")
	}
	return nil
}

// Account is a store server credential. It is not a shared record and
// never leaves the server; UserID links it to the public User record.
type Account struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}
