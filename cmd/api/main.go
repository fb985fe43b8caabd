package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mvribeiro/loanbook/pkg/models"
	"github.com/mvribeiro/loanbook/pkg/store"
)

func main() {
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	port := getenv("PORT", "8080")
	dbPath := getenv("DB_PATH", "loanbook.db")
	schedule := getenv("SWEEP_SCHEDULE", "1 0 * * *")
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	storage, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	defer storage.Close()

	if err := bootstrapAdmin(storage); err != nil {
		logger.Fatal("bootstrapping admin user", zap.Error(err))
	}

	server := NewServer(storage, logger, []byte(jwtSecret))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, func() {
		if _, err := server.ledger.RunOverdueSweep(); err != nil {
			logger.Error("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("registering sweep schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("server starting", zap.String("port", port), zap.String("db", dbPath))
	if err := http.ListenAndServe(":"+port, server.routes()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// bootstrapAdmin creates the initial user from ADMIN_USERNAME and
// ADMIN_PASSWORD when no such user exists yet.
func bootstrapAdmin(storage store.Storage) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	_, err := storage.GetUserByUsername(username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return storage.CreateUser(&models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
