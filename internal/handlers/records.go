package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/middleware"
	"github.com/pliu/socialsync/internal/models"
	"github.com/pliu/socialsync/internal/store"
	"github.com/pliu/socialsync/internal/ws"
)

type RecordsHandler struct {
	Store    store.Store
	Accounts store.Accounts
	Hub      *ws.Hub
}

// PutRecord stores one whole record and fans it out to subscribers.
func (h *RecordsHandler) PutRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection, err := models.ParseCollection(vars["collection"])
	if err != nil {
		writeError(w, err)
		return
	}

	var env models.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if env.Collection == "" {
		env.Collection = collection
	}
	if env.Collection != collection {
		http.Error(w, "Collection does not match path", http.StatusBadRequest)
		return
	}

	record, err := models.Decode(env)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.RecordID() != vars["id"] {
		http.Error(w, "Record id does not match path", http.StatusBadRequest)
		return
	}
	if err := record.Validate(); err != nil {
		writeError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if u, ok := record.(*models.User); ok {
		if u.ID != userID {
			http.Error(w, "Cannot modify another user", http.StatusForbidden)
			return
		}
		// login name and email stay unique across accounts
		if h.Accounts != nil {
			if err := h.Accounts.UpdateAccount(r.Context(), u.ID, u.Username, u.Email); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	if err := h.Store.Put(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	h.Hub.Broadcast(record)
	glog.V(2).Infof("records: %s wrote %s/%s", userID, collection, record.RecordID())

	w.WriteHeader(http.StatusNoContent)
}

// ListRecords returns every record in a collection as envelopes.
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	collection, err := models.ParseCollection(mux.Vars(r)["collection"])
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.Store.List(r.Context(), collection)
	if err != nil {
		writeError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	envs := make([]models.Envelope, 0, len(records))
	for _, rec := range records {
		env, err := models.Encode(models.Redact(rec, userID))
		if err != nil {
			writeError(w, err)
			return
		}
		envs = append(envs, env)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envs)
}

// ServeWs subscribes the caller to every collection named in the query.
func (h *RecordsHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["collection"]
	if len(names) == 0 {
		http.Error(w, "At least one collection is required", http.StatusBadRequest)
		return
	}
	collections := make([]models.Collection, 0, len(names))
	for _, name := range names {
		c, err := models.ParseCollection(name)
		if err != nil {
			writeError(w, err)
			return
		}
		collections = append(collections, c)
	}
	ws.ServeWs(h.Hub, w, r, middleware.GetUserID(r.Context()), collections)
}

// writeError maps an error code onto an HTTP status. Store clients map the
// status back to the same code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.Code(err) {
	case errors.ErrValidation:
		status = http.StatusBadRequest
	case errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrPermission:
		status = http.StatusForbidden
	case errors.ErrDuplicate:
		status = http.StatusConflict
	case errors.ErrStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		glog.Errorf("handlers: %v", err)
	}
	http.Error(w, err.Error(), status)
}
