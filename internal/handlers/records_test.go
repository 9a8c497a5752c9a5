package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/pliu/socialsync/internal/auth"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store/memstore"
	"github.com/pliu/socialsync/internal/ws"
)

func envelope(t *testing.T, r models.Record) models.Envelope {
	t.Helper()
	env, err := models.Encode(r)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testPost(id, author string) *models.Post {
	return &models.Post{
		ID:        id,
		AuthorID:  author,
		Body:      "hello",
		LikedBy:   []string{},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPutRecord(t *testing.T) {
	router, st, _ := newTestServer(t)
	token, _ := auth.IssueToken("U1")

	rr := do(router, "PUT", "/collections/posts/records/P1", token, envelope(t, testPost("P1", "U1")))
	assert.Equal(t, rr.Code, http.StatusNoContent)

	rec, err := st.Get(t.Context(), models.CollectionPosts, "P1")
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.(*models.Post).Body, "hello")
}

func TestPutRecordRejects(t *testing.T) {
	router, _, _ := newTestServer(t)
	token, _ := auth.IssueToken("U1")

	invalid := testPost("P2", "U1")
	invalid.Body = ""

	other := &models.User{ID: "U2", Username: "bob", Email: "bob@example.com", FriendIDs: []string{}, Presence: models.PresenceOnline}

	tests := []struct {
		name   string
		path   string
		token  string
		body   any
		status int
	}{
		{"no token", "/collections/posts/records/P1", "", envelope(t, testPost("P1", "U1")), http.StatusUnauthorized},
		{"unknown collection", "/collections/widgets/records/P1", token, envelope(t, testPost("P1", "U1")), http.StatusBadRequest},
		{"id mismatch", "/collections/posts/records/P9", token, envelope(t, testPost("P1", "U1")), http.StatusBadRequest},
		{"collection mismatch", "/collections/comments/records/P1", token, envelope(t, testPost("P1", "U1")), http.StatusBadRequest},
		{"invalid record", "/collections/posts/records/P2", token, envelope(t, invalid), http.StatusBadRequest},
		{"garbage body", "/collections/posts/records/P1", token, "not an envelope", http.StatusBadRequest},
		{"another user", "/collections/users/records/U2", token, envelope(t, other), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(router, "PUT", tt.path, tt.token, tt.body)
			assert.Equal(t, rr.Code, tt.status)
		})
	}
}

func TestPutRecordStoreUnavailable(t *testing.T) {
	st := memstore.New()
	st.SetAvailable(false)
	hub := ws.NewHub()
	go hub.Run()
	router := NewRouter(&AuthHandler{Store: st}, &RecordsHandler{Store: st, Hub: hub})

	token, _ := auth.IssueToken("U1")
	rr := do(router, "PUT", "/collections/posts/records/P1", token, envelope(t, testPost("P1", "U1")))
	assert.Equal(t, rr.Code, http.StatusServiceUnavailable)

	rr = do(router, "GET", "/collections/posts", token, nil)
	assert.Equal(t, rr.Code, http.StatusServiceUnavailable)
}

func TestListRecordsMasksOtherEmails(t *testing.T) {
	router, _, _ := newTestServer(t)
	alice := signup(t, router, "alice")
	signup(t, router, "christopher")

	rr := do(router, "GET", "/collections/users", alice.Token, nil)
	assert.Equal(t, rr.Code, http.StatusOK)

	var envs []models.Envelope
	if err := json.NewDecoder(rr.Body).Decode(&envs); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(envs), 2)

	emails := map[string]string{}
	for _, env := range envs {
		rec, err := models.Decode(env)
		assert.Equal(t, err, nil)
		u := rec.(*models.User)
		emails[u.Username] = u.Email
	}
	assert.Equal(t, emails["alice"], "alice@example.com")
	assert.Equal(t, emails["christopher"], "chr********@example.com")
}

func TestListRecordsEmptyCollection(t *testing.T) {
	router, _, _ := newTestServer(t)
	token, _ := auth.IssueToken("U1")

	rr := do(router, "GET", "/collections/servers", token, nil)
	assert.Equal(t, rr.Code, http.StatusOK)
	assert.Equal(t, rr.Body.String(), "[]\n")
}

func TestServeWsRequiresCollection(t *testing.T) {
	router, _, _ := newTestServer(t)
	token, _ := auth.IssueToken("U1")

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, rr.Code, http.StatusBadRequest)

	req = httptest.NewRequest("GET", "/ws?collection=widgets&token="+token, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, rr.Code, http.StatusBadRequest)
}

func TestPutUserKeepsAccountsUnique(t *testing.T) {
	router, _, _ := newTestServer(t)
	alice := signup(t, router, "alice")
	signup(t, router, "bob")

	taken := alice.User.Clone()
	taken.Username = "bob"
	rr := do(router, "PUT", "/collections/users/records/"+alice.User.ID, alice.Token, envelope(t, taken))
	assert.Equal(t, rr.Code, http.StatusConflict)

	takenEmail := alice.User.Clone()
	takenEmail.Email = "bob@example.com"
	rr = do(router, "PUT", "/collections/users/records/"+alice.User.ID, alice.Token, envelope(t, takenEmail))
	assert.Equal(t, rr.Code, http.StatusConflict)

	// the rejected writes left alice's login alone
	rr = do(router, "POST", "/login", "", Credentials{Username: "alice", Password: "password123"})
	assert.Equal(t, rr.Code, http.StatusOK)
}

func TestPutUserRenamesAccount(t *testing.T) {
	router, st, _ := newTestServer(t)
	alice := signup(t, router, "alice")

	renamed := alice.User.Clone()
	renamed.Username = "alicia"
	rr := do(router, "PUT", "/collections/users/records/"+alice.User.ID, alice.Token, envelope(t, renamed))
	assert.Equal(t, rr.Code, http.StatusNoContent)

	rec, err := st.Get(t.Context(), models.CollectionUsers, alice.User.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.(*models.User).Username, "alicia")

	rr = do(router, "POST", "/login", "", Credentials{Username: "alicia", Password: "password123"})
	assert.Equal(t, rr.Code, http.StatusOK)

	rr = do(router, "POST", "/login", "", Credentials{Username: "alice", Password: "password123"})
	assert.Equal(t, rr.Code, http.StatusUnauthorized)

	// unchanged fields, such as a presence update, are accepted as before
	online := renamed.Clone()
	online.Presence = models.PresenceOnline
	rr = do(router, "PUT", "/collections/users/records/"+alice.User.ID, alice.Token, envelope(t, online))
	assert.Equal(t, rr.Code, http.StatusNoContent)
}
