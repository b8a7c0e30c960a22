package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/huenest/relay/internal/auth"
	"github.com/huenest/relay/internal/aura"
	"github.com/huenest/relay/internal/config"
	"github.com/huenest/relay/internal/db"
	routes "github.com/huenest/relay/internal/http"
	"github.com/huenest/relay/internal/models"
	"github.com/huenest/relay/internal/store"
	"github.com/huenest/relay/internal/ws"
)

func main() {
	// Running in production without a .env file is fine; env vars win.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	log.Println("Running database migrations...")
	if err := database.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations complete.")

	st := store.NewGormStore(database)
	ledger := aura.NewLedger(st)

	hub := ws.NewHub(st, ledger, ws.Options{
		PersistTimeout: cfg.PersistTimeout,
		EventRateRPS:   cfg.EventRateRPS,
		EventRateBurst: cfg.EventRateBurst,
	})
	go hub.Run()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if verifier == nil {
		log.Println("RELAY_JWT_SECRET not set: trusting client-supplied identity (dev mode)")
	}

	router := gin.New()
	routes.SetupRoutes(router, cfg, st, hub, verifier)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
