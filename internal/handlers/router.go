package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/socialsync/internal/middleware"
)

// NewRouter wires the store server's endpoints. Everything except signup
// and login requires a session token.
func NewRouter(authHandler *AuthHandler, recordsHandler *RecordsHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")

	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(h)
	}
	r.Handle("/collections/{collection}", protected(recordsHandler.ListRecords)).Methods("GET")
	r.Handle("/collections/{collection}/records/{id}", protected(recordsHandler.PutRecord)).Methods("PUT")
	r.Handle("/ws", protected(recordsHandler.ServeWs))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	return r
}
