// Package client runs one signed-in session: it owns the mirror, keeps it
// current through an observer, and exposes views and actions for the
// current user.
//
// Every mirror write, whether it comes from the observer or from a
// successful mutation, is funneled through a single update loop, so writes
// are applied strictly one at a time in arrival order. Once the loop stops,
// writes fail with SESSION_CLOSED.
package client

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/config"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/mirror"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/mutation"
	"github.com/pliu/socialsync/internal/observer"
	"github.com/pliu/socialsync/internal/session"
	"github.com/pliu/socialsync/internal/store"
)

const changeBuffer = 64

type update struct {
	fn     func(*mirror.Mirror) error
	result chan error
}

type Client struct {
	cfg      *config.Config
	store    store.Store
	sessions session.Store

	mirror *mirror.Mirror
	coord  *mutation.Coordinator

	updates chan update
	changes chan models.Collection

	mu       sync.Mutex
	session  *session.Session
	running  bool
	observer observer.Observer
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg *config.Config, st store.Store, sessions session.Store, opts ...mutation.Option) *Client {
	c := &Client{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		mirror:   mirror.New(),
		updates:  make(chan update),
		changes:  make(chan models.Collection, changeBuffer),
	}
	c.coord = mutation.New(st, c, c.mirror, opts...)
	c.mirror.OnChange(func(col models.Collection) {
		select {
		case c.changes <- col:
		default:
		}
	})
	return c
}

// Resume restores the session saved on this device.
func (c *Client) Resume(ctx context.Context) (*session.Session, error) {
	sess, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.setSession(sess)
	glog.Infof("client: resumed session for %s", sess.Username)
	return sess, nil
}

// Login saves sess as the current session on this device.
func (c *Client) Login(ctx context.Context, sess session.Session) error {
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	c.setSession(&sess)
	glog.Infof("client: logged in as %s", sess.Username)
	return nil
}

func (c *Client) setSession(sess *session.Session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	if auth, ok := c.store.(store.Authenticator); ok {
		auth.SetToken(sess.Token)
	}
}

// Start begins applying updates and observing the store. A session must
// have been resumed or logged in first.
//
// Start returns once the mirror has been seeded from the store.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if c.session == nil {
		c.mu.Unlock()
		return errors.New(errors.ErrSessionClosed, "no active session")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true
	go c.run(ctx, c.done)

	obs := observer.New(c.cfg.TransportMode, c.store, c, observer.Options{
		PollInterval:   c.cfg.PollInterval,
		SubscribeRetry: c.cfg.SubscribeRetry,
	})
	c.observer = obs
	c.mu.Unlock()

	// seeding goes through the loop, so the lock must be released first
	return obs.Start(ctx)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case u := <-c.updates:
			u.result <- u.fn(c.mirror)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) submit(fn func(*mirror.Mirror) error) error {
	c.mu.Lock()
	running, done := c.running, c.done
	c.mu.Unlock()
	if !running {
		return errors.New(errors.ErrSessionClosed, "session is closed")
	}

	u := update{fn: fn, result: make(chan error, 1)}
	select {
	case c.updates <- u:
	case <-done:
		return errors.New(errors.ErrSessionClosed, "session is closed")
	}
	// the loop always answers an update it has taken
	return <-u.result
}

// Apply queues records for the update loop and waits for them to land.
func (c *Client) Apply(records ...models.Record) error {
	return c.submit(func(m *mirror.Mirror) error { return m.Apply(records...) })
}

func (c *Client) Replace(collection models.Collection, records []models.Record) error {
	return c.submit(func(m *mirror.Mirror) error { return m.Replace(collection, records) })
}

// Sync fetches every collection once and waits for the result to be
// applied.
func (c *Client) Sync(ctx context.Context) error {
	return observer.NewPoller(c.store, c, observer.Options{}).PollOnce(ctx)
}

// teardown stops the observer first so nothing new is queued, then the loop.
func (c *Client) teardown() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	obs, cancel, done := c.observer, c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	obs.Stop()
	cancel()
	<-done
}

// Close stops the session but keeps it saved for the next Resume.
func (c *Client) Close() {
	c.teardown()
}

// Logout stops the session, forgets it on this device and empties the
// mirror.
func (c *Client) Logout(ctx context.Context) error {
	c.teardown()

	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	for _, col := range models.Collections {
		if err := c.mirror.Replace(col, nil); err != nil {
			return err
		}
	}
	if err := c.sessions.Clear(ctx); err != nil {
		return err
	}
	if sess != nil {
		glog.Infof("client: logged out %s", sess.Username)
	}
	return nil
}

// Changes reports collections as they change. Notifications are dropped
// while the buffer is full; readers should re-read the snapshot rather than
// count events.
func (c *Client) Changes() <-chan models.Collection {
	return c.changes
}

func (c *Client) Snapshot() *mirror.Snapshot {
	return c.mirror.Snapshot()
}

func (c *Client) Version() uint64 {
	return c.mirror.Version()
}

func (c *Client) State() observer.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return observer.Idle
	}
	return c.observer.State()
}

// Session returns the current session, or SESSION_CLOSED if nobody is
// signed in.
func (c *Client) Session() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.New(errors.ErrSessionClosed, "no active session")
	}
	sess := *c.session
	return &sess, nil
}

func (c *Client) currentUserID() (string, error) {
	sess, err := c.Session()
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}
