// Package httpstore talks to the store server: records over REST and
// pushed changes over one websocket per subscribed collection.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
)

const requestTimeout = 10 * time.Second

type Store struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: requestTimeout},
	}
}

// SetToken sets the session token sent with every later call.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Store) currentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Put(ctx context.Context, record models.Record) error {
	env, err := models.Encode(record)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/collections/%s/records/%s", record.Collection(), url.PathEscape(record.RecordID()))
	return s.do(ctx, http.MethodPut, path, env, nil)
}

func (s *Store) List(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	var envs []models.Envelope
	if err := s.do(ctx, http.MethodGet, "/collections/"+string(collection), nil, &envs); err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, len(envs))
	for _, env := range envs {
		r, err := models.Decode(env)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// AuthResult is what signup and login hand back.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Signup registers a new account. The returned token is not installed;
// callers pass it to SetToken or a client session.
func (s *Store) Signup(ctx context.Context, username, email, password string) (*AuthResult, error) {
	req := map[string]string{"username": username, "email": email, "password": password}
	var res AuthResult
	if err := s.do(ctx, http.MethodPost, "/signup", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	req := map[string]string{"username": username, "password": password}
	var res AuthResult
	if err := s.do(ctx, http.MethodPost, "/login", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.ErrInternal, "encode request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "build request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(resp.StatusCode, method+" "+path, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "decode "+path, err)
	}
	return nil
}

// statusError maps the server's status codes back onto error codes.
func statusError(status int, op, msg string) error {
	code := errors.ErrStoreUnavailable
	switch status {
	case http.StatusBadRequest:
		code = errors.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		code = errors.ErrPermission
	case http.StatusNotFound:
		code = errors.ErrNotFound
	case http.StatusConflict:
		code = errors.ErrDuplicate
	}
	return errors.Newf(code, "%s: %d %s", op, status, msg)
}

func (s *Store) wsURL(collection models.Collection) (string, error) {
	u, err := url.Parse(s.baseURL + "/ws")
	if err != nil {
		return "", errors.Wrap(errors.ErrInternal, "parse store url", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("collection", string(collection))
	if token := s.currentToken(); token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Store) Subscribe(ctx context.Context, collection models.Collection, handler func(models.Record)) (store.Subscription, error) {
	target, err := s.wsURL(collection)
	if err != nil {
		return nil, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return nil, statusError(resp.StatusCode, "subscribe "+string(collection), resp.Status)
		}
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "subscribe "+string(collection), err)
	}

	sub := &subscription{
		conn:       conn,
		collection: collection,
		handler:    handler,
		done:       make(chan struct{}),
	}
	go sub.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type subscription struct {
	conn       *websocket.Conn
	collection models.Collection
	handler    func(models.Record)
	done       chan struct{}

	once   sync.Once
	mu     sync.Mutex
	closed bool
	err    error
}

func (sub *subscription) readLoop() {
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			sub.end(errors.Wrap(errors.ErrStoreUnavailable, "subscription to "+string(sub.collection)+" dropped", err))
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			glog.Warningf("httpstore: bad push on %s: %v", sub.collection, err)
			continue
		}
		r, err := models.Decode(env)
		if err != nil {
			glog.Warningf("httpstore: bad push on %s: %v", sub.collection, err)
			continue
		}
		sub.handler(r)
	}
}

// end records why the subscription stopped. A Close that got there first
// wins, so a read error caused by our own Close is not reported.
func (sub *subscription) end(err error) {
	sub.once.Do(func() {
		sub.mu.Lock()
		if !sub.closed {
			sub.err = err
		}
		sub.mu.Unlock()
		sub.conn.Close()
		close(sub.done)
	})
}

func (sub *subscription) Close() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
	sub.end(nil)
}

func (sub *subscription) Done() <-chan struct{} { return sub.done }

func (sub *subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}
