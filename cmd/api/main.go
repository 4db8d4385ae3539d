package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mindhaven.org/internal/audit"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/crisis"
	"mindhaven.org/internal/httpapi"
	"mindhaven.org/internal/obs"
	"mindhaven.org/internal/session"
)

var version = "0.3.0"

func main() {
	obs.Init()

	// The permission table is static; a typo in it must stop the boot, not a
	// request.
	if err := auth.ValidatePermissions(); err != nil {
		log.Fatalf("permission table: %v", err)
	}

	secret := os.Getenv("MINDHAVEN_AUTH_SECRET")
	if secret == "" {
		log.Fatal("MINDHAVEN_AUTH_SECRET is required")
	}
	verifier, err := auth.NewVerifier(secret)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	mode := httpapi.ParseMode(os.Getenv("MINDHAVEN_ENV"))

	auditLog := audit.New()

	// DB (when a DSN is set) backs the user and session directories and the
	// /readyz probe; without one the process runs on in-memory stores.
	var db *sql.DB
	var users auth.Directory = auth.NewMemoryDirectory()
	var sessions session.Directory = session.NewMemoryDirectory()
	if dsn := os.Getenv("MINDHAVEN_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		users = auth.NewPGDirectory(db)
		sessions = session.NewPGDirectory(db)
	}

	var notifier crisis.Notifier
	if uri := os.Getenv("MINDHAVEN_AMQP_URI"); uri != "" {
		notifier, err = crisis.NewAMQPNotifier(uri)
		if err != nil {
			log.Fatalf("amqp notifier: %v", err)
		}
	}

	feed := crisis.NewFeed()

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Mode:       mode,
		Verifier:   verifier,
		Resolver:   auth.NewResolver(verifier, users, auditLog),
		Users:      users,
		Sessions:   sessions,
		Dispatcher: crisis.NewDispatcher(notifier, auditLog, crisis.WithFeed(feed)),
		Feed:       feed,
		Log:        auditLog,
	})

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting mindhaven-api %s (%s) on %s", version, mode, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if notifier != nil {
		_ = notifier.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	_ = auditLog.Close()
	log.Println("Stopped")
}
