package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pliu/socialsync/internal/auth"
	"github.com/pliu/socialsync/internal/config"
	"github.com/pliu/socialsync/internal/email"
	"github.com/pliu/socialsync/internal/handlers"
	"github.com/pliu/socialsync/internal/store/sqlstore"
	"github.com/pliu/socialsync/internal/ws"
)

func main() {
	cfg := config.Load()
	cfg.RegisterServerFlags(flag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	auth.SecretKey = []byte(cfg.JWTSecret)

	// Initialize Database
	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		glog.Fatalf("opening %s database: %v", cfg.DBDriver, err)
	}
	defer store.Close()

	// Initialize WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	mailer := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)

	// Initialize Handlers
	authHandler := &handlers.AuthHandler{Store: store, Accounts: store, Hub: hub, Mailer: mailer}
	recordsHandler := &handlers.RecordsHandler{Store: store, Accounts: store, Hub: hub}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handlers.NewRouter(authHandler, recordsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		glog.Infof("Starting server on %s (%s)", cfg.ServerAddr, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	glog.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
}
