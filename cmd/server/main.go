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

	"github.com/samikhan1239/Fiver/internal/config"
	"github.com/samikhan1239/Fiver/internal/domain"
	"github.com/samikhan1239/Fiver/internal/httpserver"
	"github.com/samikhan1239/Fiver/internal/security"
	"github.com/samikhan1239/Fiver/internal/service"
	"github.com/samikhan1239/Fiver/internal/store/postgres"
	"github.com/samikhan1239/Fiver/internal/store/sqlite"
	"github.com/samikhan1239/Fiver/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		db       *sql.DB
		messages domain.MessageRepository
		users    domain.UserRepository
	)
	switch cfg.Driver {
	case "postgres":
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		messages = postgres.NewMessageRepo(db)
		users = postgres.NewUserRepo(db)
	default:
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := sqlite.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		messages = sqlite.NewMessageRepo(db)
		users = sqlite.NewUserRepo(db)
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}

	msgSvc := service.NewMessageService(messages, users, encryptor)
	registry := ws.NewRegistry()
	wsRouter := ws.NewRouter(registry)

	router := httpserver.NewRouter(cfg, msgSvc, users, registry, wsRouter, tokenSvc)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting Fiver chat gateway on %s (%s store)\n", cfg.HTTPAddr(), cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
