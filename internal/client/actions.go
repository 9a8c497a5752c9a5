package client

import (
	"context"

	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/views"
)

// Me returns the signed-in user's record once the mirror has it.
func (c *Client) Me() (*models.User, bool) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, false
	}
	return c.Snapshot().User(id)
}

func (c *Client) Feed() []views.FeedItem {
	return views.Feed(c.Snapshot())
}

func (c *Client) Chats() ([]views.ChatSummary, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return views.BuildChatSummaries(c.Snapshot(), id), nil
}

func (c *Client) Thread(peerID string) ([]*models.Message, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return views.MessagesBetween(c.Snapshot(), id, peerID), nil
}

func (c *Client) Friends() ([]*models.User, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return views.Friends(c.Snapshot(), id), nil
}

func (c *Client) Servers() ([]*models.Server, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return views.ServersFor(c.Snapshot(), id), nil
}

func (c *Client) ServerLog(serverID string) []*models.ServerMessage {
	return views.ServerMessages(c.Snapshot(), serverID)
}

func (c *Client) CreatePost(ctx context.Context, body, mediaRef, mediaType string) (*models.Post, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.CreatePost(ctx, id, body, mediaRef, mediaType)
}

func (c *Client) ToggleLike(ctx context.Context, postID string) (*models.Post, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.ToggleLike(ctx, postID, id)
}

func (c *Client) AddComment(ctx context.Context, postID, body string) (*models.Comment, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.AddComment(ctx, postID, id, body)
}

func (c *Client) SendMessage(ctx context.Context, peerID, body string) (*models.Message, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.SendMessage(ctx, id, peerID, body)
}

func (c *Client) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.MarkRead(ctx, messageID, id)
}

func (c *Client) MarkConversationRead(ctx context.Context, peerID string) (int, error) {
	id, err := c.currentUserID()
	if err != nil {
		return 0, err
	}
	return c.coord.MarkConversationRead(ctx, id, peerID)
}

func (c *Client) AddFriend(ctx context.Context, friendID string) (*models.User, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.AddFriend(ctx, id, friendID)
}

func (c *Client) RemoveFriend(ctx context.Context, friendID string) (*models.User, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.RemoveFriend(ctx, id, friendID)
}

func (c *Client) SetPresence(ctx context.Context, presence models.Presence) (*models.User, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.SetPresence(ctx, id, presence)
}

func (c *Client) UpdateProfile(ctx context.Context, username, avatarRef string) (*models.User, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.UpdateProfile(ctx, id, username, avatarRef)
}

func (c *Client) CreateServer(ctx context.Context, name string) (*models.Server, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.CreateServer(ctx, id, name)
}

func (c *Client) JoinServer(ctx context.Context, inviteCode string) (*models.Server, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.JoinServer(ctx, id, inviteCode)
}

func (c *Client) SendServerMessage(ctx context.Context, serverID, body string) (*models.ServerMessage, error) {
	id, err := c.currentUserID()
	if err != nil {
		return nil, err
	}
	return c.coord.SendServerMessage(ctx, serverID, id, body)
}
