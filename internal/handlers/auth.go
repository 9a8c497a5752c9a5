package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"github.com/pliu/socialsync/internal/auth"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
	"github.com/pliu/socialsync/internal/ws"
)

const minPasswordLength = 6

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by both signup and login.
type AuthResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type Mailer interface {
	SendWelcomeEmail(to, username string) error
}

type AuthHandler struct {
	Store    store.Store
	Accounts store.Accounts
	Hub      *ws.Hub
	Mailer   Mailer
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if len(req.Password) < minPasswordLength {
		http.Error(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	user := &models.User{
		ID:        ulid.Make().String(),
		Username:  req.Username,
		Email:     req.Email,
		FriendIDs: []string{},
		Presence:  models.PresenceOffline,
		UpdatedAt: time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		writeError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		glog.Errorf("signup: hashing password: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	account := &models.Account{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: hash,
	}
	if err := h.Accounts.CreateAccount(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.Put(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	if h.Hub != nil {
		h.Hub.Broadcast(user)
	}

	token, err := auth.IssueToken(user.ID)
	if err != nil {
		glog.Errorf("signup: issuing token: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	glog.Infof("signup: registered %s as %s", user.Username, user.ID)

	if h.Mailer != nil {
		go func() {
			if err := h.Mailer.SendWelcomeEmail(user.Email, user.Username); err != nil {
				glog.Warningf("signup: welcome email to %s: %v", models.MaskEmail(user.Email), err)
			}
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{User: user, Token: token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := h.Accounts.GetAccountByUsername(r.Context(), strings.TrimSpace(creds.Username))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		writeError(w, err)
		return
	}
	if !auth.CheckPassword(account.PasswordHash, creds.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	user, err := h.userRecord(r, account)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.IssueToken(account.UserID)
	if err != nil {
		glog.Errorf("login: issuing token: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{User: user, Token: token})
}

// userRecord finds the User record behind an account. An account whose
// record write failed at signup gets a fresh offline record.
func (h *AuthHandler) userRecord(r *http.Request, account *models.Account) (*models.User, error) {
	records, err := h.Store.List(r.Context(), models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if u, ok := rec.(*models.User); ok && u.ID == account.UserID {
			return u, nil
		}
	}
	return &models.User{
		ID:        account.UserID,
		Username:  account.Username,
		Email:     account.Email,
		FriendIDs: []string{},
		Presence:  models.PresenceOffline,
	}, nil
}
