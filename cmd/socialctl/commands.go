package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/pliu/socialsync/internal/client"
	"github.com/pliu/socialsync/internal/config"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/session"
	"github.com/pliu/socialsync/internal/store/httpstore"
	"github.com/pliu/socialsync/internal/views"
	"golang.org/x/term"
)

type app struct {
	client *client.Client
	out    *tabwriter.Writer
}

func str(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return v
}

func password(opts docopt.Opts) (string, error) {
	if p := str(opts, "--password"); p != "" {
		return p, nil
	}
	fmt.Print("Enter password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

func openSessions(cfg *config.Config) (*session.SQLiteStore, error) {
	return session.Open(cfg.SessionPath)
}

func register(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	pw, err := password(opts)
	if err != nil {
		return err
	}
	st := httpstore.New(cfg.StoreURL)
	res, err := st.Signup(ctx, str(opts, "<username>"), str(opts, "<email>"), pw)
	if err != nil {
		return err
	}
	return saveSession(ctx, cfg, st, res)
}

func login(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	pw, err := password(opts)
	if err != nil {
		return err
	}
	st := httpstore.New(cfg.StoreURL)
	res, err := st.Login(ctx, str(opts, "<username>"), pw)
	if err != nil {
		return err
	}
	return saveSession(ctx, cfg, st, res)
}

func saveSession(ctx context.Context, cfg *config.Config, st *httpstore.Store, res *httpstore.AuthResult) error {
	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	c := client.New(cfg, st, sessions)
	err = c.Login(ctx, session.Session{
		UserID:   res.User.ID,
		Username: res.User.Username,
		Token:    res.Token,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", res.User.Username, res.User.ID)
	return nil
}

func logout(ctx context.Context, cfg *config.Config) error {
	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	c := client.New(cfg, httpstore.New(cfg.StoreURL), sessions)
	if _, err := c.Resume(ctx); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	if err := c.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

// withClient resumes the saved session, seeds the mirror and runs fn.
func withClient(ctx context.Context, cfg *config.Config, fn func(*app) error) error {
	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	c := client.New(cfg, httpstore.New(cfg.StoreURL), sessions)
	if _, err := c.Resume(ctx); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.New(errors.ErrSessionClosed, "not signed in, run socialctl login first")
		}
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	a := &app{client: c, out: tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)}
	defer a.out.Flush()
	return fn(a)
}

// user resolves a username, or a raw user id, against the mirror.
func (a *app) user(name string) (*models.User, error) {
	snap := a.client.Snapshot()
	if u, ok := views.UserByUsername(snap, name); ok {
		return u, nil
	}
	if u, ok := snap.User(name); ok {
		return u, nil
	}
	return nil, errors.Newf(errors.ErrNotFound, "no user %q", name)
}

func (a *app) username(id string) string {
	if u, ok := a.client.Snapshot().User(id); ok {
		return u.Username
	}
	return id
}

func (a *app) run(ctx context.Context, opts docopt.Opts) error {
	is := func(cmd string) bool {
		v, _ := opts.Bool(cmd)
		return v
	}

	switch {
	case is("whoami"):
		me, ok := a.client.Me()
		if !ok {
			return errors.New(errors.ErrNotFound, "your user record is not in the store")
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\t%d friends\n", me.ID, me.Username, me.Presence, len(me.FriendIDs))

	case is("feed"):
		a.printFeed()

	case is("post"):
		p, err := a.client.CreatePost(ctx, str(opts, "<body>"), str(opts, "--media"), str(opts, "--media-type"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "posted %s\n", p.ID)

	case is("like"):
		p, err := a.client.ToggleLike(ctx, str(opts, "<post_id>"))
		if err != nil {
			return err
		}
		me, _ := a.client.Session()
		verb := "unliked"
		if views.HasLiked(p, me.UserID) {
			verb = "liked"
		}
		fmt.Fprintf(a.out, "%s %s (%d likes)\n", verb, p.ID, len(p.LikedBy))

	case is("comment"):
		c, err := a.client.AddComment(ctx, str(opts, "<post_id>"), str(opts, "<body>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "commented %s\n", c.ID)

	case is("chats"):
		return a.printChats()

	case is("thread"):
		peer, err := a.user(str(opts, "<username>"))
		if err != nil {
			return err
		}
		messages, err := a.client.Thread(peer.ID)
		if err != nil {
			return err
		}
		for _, m := range messages {
			status := ""
			if !m.Read {
				status = "unread"
			}
			fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\n", m.CreatedAt.Local().Format(time.Kitchen), a.username(m.SenderID), m.Body, status)
		}

	case is("send"):
		peer, err := a.user(str(opts, "<username>"))
		if err != nil {
			return err
		}
		m, err := a.client.SendMessage(ctx, peer.ID, str(opts, "<body>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sent %s to %s\n", m.ID, peer.Username)

	case is("read"):
		peer, err := a.user(str(opts, "<username>"))
		if err != nil {
			return err
		}
		n, err := a.client.MarkConversationRead(ctx, peer.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "marked %d messages from %s read\n", n, peer.Username)

	case is("friends"):
		friends, err := a.client.Friends()
		if err != nil {
			return err
		}
		for _, f := range friends {
			fmt.Fprintf(a.out, "%s\t%s\t%s\n", f.Username, f.Presence, f.ID)
		}

	case is("friend"):
		friend, err := a.user(str(opts, "<username>"))
		if err != nil {
			return err
		}
		if is("add") {
			_, err = a.client.AddFriend(ctx, friend.ID)
		} else {
			_, err = a.client.RemoveFriend(ctx, friend.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "friends updated\n")

	case is("presence"):
		presence := models.PresenceOffline
		if is("online") {
			presence = models.PresenceOnline
		} else if is("idle") {
			presence = models.PresenceIdle
		}
		if _, err := a.client.SetPresence(ctx, presence); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "presence %s\n", presence)

	case is("profile"):
		me, ok := a.client.Me()
		if !ok {
			return errors.New(errors.ErrNotFound, "your user record is not in the store")
		}
		avatar := me.AvatarRef
		if ref := str(opts, "--avatar"); ref != "" {
			avatar = ref
		}
		u, err := a.client.UpdateProfile(ctx, str(opts, "<new_username>"), avatar)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "profile updated: %s\n", u.Username)

	case is("servers"):
		servers, err := a.client.Servers()
		if err != nil {
			return err
		}
		for _, s := range servers {
			fmt.Fprintf(a.out, "%s\t%s\tinvite %s\t%d members\n", s.ID, s.Name, s.InviteCode, len(s.MemberIDs))
		}
	}
	return nil
}

func (a *app) server(ctx context.Context, opts docopt.Opts) error {
	is := func(cmd string) bool {
		v, _ := opts.Bool(cmd)
		return v
	}

	switch {
	case is("create"):
		s, err := a.client.CreateServer(ctx, str(opts, "<name>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %s, invite code %s\n", s.ID, s.InviteCode)
	case is("join"):
		s, err := a.client.JoinServer(ctx, str(opts, "<invite_code>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "joined %s (%s)\n", s.Name, s.ID)
	case is("say"):
		m, err := a.client.SendServerMessage(ctx, str(opts, "<server_id>"), str(opts, "<body>"))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sent %s\n", m.ID)
	case is("log"):
		for _, m := range a.client.ServerLog(str(opts, "<server_id>")) {
			fmt.Fprintf(a.out, "%s\t%s\t%s\n", m.CreatedAt.Local().Format(time.Kitchen), a.username(m.AuthorID), m.Body)
		}
	}
	return nil
}

func (a *app) printFeed() {
	for _, item := range a.client.Feed() {
		p := item.Post
		body := p.Body
		if p.MediaRef != "" {
			body = strings.TrimSpace(body + " [" + p.MediaType + " " + p.MediaRef + "]")
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\t%d likes\n", p.ID, a.username(p.AuthorID), body, len(p.LikedBy))
		for _, c := range item.Comments {
			fmt.Fprintf(a.out, "\t  %s\t%s\t\n", a.username(c.AuthorID), c.Body)
		}
	}
}

func (a *app) printChats() error {
	chats, err := a.client.Chats()
	if err != nil {
		return err
	}
	for _, s := range chats {
		name := s.PeerUsername
		if name == "" {
			name = s.PeerID
		}
		fmt.Fprintf(a.out, "%s\t%s\t%d unread\t%s\n", name, s.Presence, s.UnreadCount, s.LastMessageBody)
	}
	fmt.Fprintf(a.out, "%d unread in total\n", views.UnreadTotal(chats))
	return nil
}

// watch redraws the feed or the chat list whenever the mirror changes.
func watch(ctx context.Context, cfg *config.Config, opts docopt.Opts) error {
	chats, _ := opts.Bool("--chats")
	return withClient(ctx, cfg, func(a *app) error {
		draw := func() error {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("%s  [%s]\n\n", time.Now().Format(time.TimeOnly), a.client.State())
			var err error
			if chats {
				err = a.printChats()
			} else {
				a.printFeed()
			}
			a.out.Flush()
			return err
		}

		if err := draw(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-a.client.Changes():
				if err := draw(); err != nil {
					return err
				}
			}
		}
	})
}
