// Package views derives read-only structures from a mirror snapshot. Every
// function here is pure: it neither writes to the mirror nor performs I/O,
// and two calls on the same snapshot return equal results.
package views

import (
	"sort"
	"strings"
	"time"

	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
)

type FeedItem struct {
	Post           *models.Post      `json:"post"`
	AuthorUsername string            `json:"author_username,omitempty"`
	Comments       []*models.Comment `json:"comments"`
}

// Feed lists posts newest first, ties broken by id descending. Comments are
// attached oldest first, ties broken by id ascending.
func Feed(snap *mirror.Snapshot) []FeedItem {
	byPost := make(map[string][]*models.Comment)
	for _, c := range snap.Comments() {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}

	posts := snap.Posts()
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})

	feed := make([]FeedItem, 0, len(posts))
	for _, p := range posts {
		comments := byPost[p.ID]
		sortComments(comments)
		item := FeedItem{Post: p, Comments: comments}
		if author, ok := snap.User(p.AuthorID); ok {
			item.AuthorUsername = author.Username
		}
		if item.Comments == nil {
			item.Comments = []*models.Comment{}
		}
		feed = append(feed, item)
	}
	return feed
}

func sortComments(comments []*models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
}

type ChatSummary struct {
	PeerID          string          `json:"peer_id"`
	PeerUsername    string          `json:"peer_username,omitempty"`
	LastMessageBody string          `json:"last_message_body"`
	UnreadCount     int             `json:"unread_count"`
	Presence        models.Presence `json:"presence"`
	LastMessageAt   time.Time       `json:"last_message_at"`
}

// BuildChatSummaries groups every message touching currentUserID by the
// other participant.
//
// The summaries are accumulated in one linear pass over the messages in
// creation order. A message replaces the group's last body when its
// createdAt is not older than the last one seen, so on equal timestamps the
// later message in the pass wins. The unread counter is bumped as each
// unread message addressed to currentUserID is reached, so at any point of
// the pass it covers only the messages scanned so far.
//
// Results are ordered by unread count descending, then by latest message
// descending, then by peer id.
func BuildChatSummaries(snap *mirror.Snapshot, currentUserID string) []ChatSummary {
	messages := inCreationOrder(snap.Messages())

	groups := make(map[string]*ChatSummary)
	var order []string
	for _, m := range messages {
		if !m.Involves(currentUserID) {
			continue
		}
		peer := m.Peer(currentUserID)
		s, ok := groups[peer]
		if !ok {
			s = &ChatSummary{PeerID: peer}
			groups[peer] = s
			order = append(order, peer)
		}
		if !m.CreatedAt.Before(s.LastMessageAt) {
			s.LastMessageBody = m.Body
			s.LastMessageAt = m.CreatedAt
		}
		if m.ReceiverID == currentUserID && !m.Read {
			s.UnreadCount++
		}
	}

	summaries := make([]ChatSummary, 0, len(order))
	for _, peer := range order {
		s := *groups[peer]
		s.Presence = models.PresenceOffline
		if u, ok := snap.User(peer); ok {
			s.PeerUsername = u.Username
			if u.Presence.Valid() {
				s.Presence = u.Presence
			}
		}
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.UnreadCount != b.UnreadCount {
			return a.UnreadCount > b.UnreadCount
		}
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.PeerID < b.PeerID
	})
	return summaries
}

// UnreadTotal sums the unread counters of all conversations.
func UnreadTotal(summaries []ChatSummary) int {
	total := 0
	for _, s := range summaries {
		total += s.UnreadCount
	}
	return total
}

// MessagesBetween returns the conversation between a and b in creation order.
func MessagesBetween(snap *mirror.Snapshot, a, b string) []*models.Message {
	var thread []*models.Message
	for _, m := range snap.Messages() {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			thread = append(thread, m)
		}
	}
	return inCreationOrder(thread)
}

func inCreationOrder(messages []*models.Message) []*models.Message {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages
}

func IsFriend(user *models.User, otherID string) bool {
	return user != nil && models.ContainsID(user.FriendIDs, otherID)
}

func HasLiked(post *models.Post, userID string) bool {
	return post != nil && models.ContainsID(post.LikedBy, userID)
}

// Friends resolves a user's friend ids against the snapshot, by username.
// Ids of users the mirror has not seen are skipped.
func Friends(snap *mirror.Snapshot, userID string) []*models.User {
	u, ok := snap.User(userID)
	if !ok {
		return nil
	}
	var friends []*models.User
	for _, id := range u.FriendIDs {
		if f, ok := snap.User(id); ok {
			friends = append(friends, f)
		}
	}
	sort.SliceStable(friends, func(i, j int) bool {
		return strings.ToLower(friends[i].Username) < strings.ToLower(friends[j].Username)
	})
	return friends
}

func UserByUsername(snap *mirror.Snapshot, username string) (*models.User, bool) {
	for _, u := range snap.Users() {
		if u.Username == username {
			return u, true
		}
	}
	return nil, false
}

// ServersFor lists the servers userID belongs to, newest first.
func ServersFor(snap *mirror.Snapshot, userID string) []*models.Server {
	var servers []*models.Server
	for _, s := range snap.Servers() {
		if models.ContainsID(s.MemberIDs, userID) {
			servers = append(servers, s)
		}
	}
	sort.SliceStable(servers, func(i, j int) bool {
		if !servers[i].CreatedAt.Equal(servers[j].CreatedAt) {
			return servers[i].CreatedAt.After(servers[j].CreatedAt)
		}
		return servers[i].ID > servers[j].ID
	})
	return servers
}

func ServerByInviteCode(snap *mirror.Snapshot, code string) (*models.Server, bool) {
	for _, s := range snap.Servers() {
		if strings.EqualFold(s.InviteCode, code) {
			return s, true
		}
	}
	return nil, false
}

// ServerMessages returns a server's chat log oldest first.
func ServerMessages(snap *mirror.Snapshot, serverID string) []*models.ServerMessage {
	var log []*models.ServerMessage
	for _, m := range snap.ServerMessages() {
		if m.ServerID == serverID {
			log = append(log, m)
		}
	}
	sort.SliceStable(log, func(i, j int) bool {
		if !log[i].CreatedAt.Equal(log[j].CreatedAt) {
			return log[i].CreatedAt.Before(log[j].CreatedAt)
		}
		return log[i].ID < log[j].ID
	})
	return log
}
