package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	pginfra "github.com/oksasatya/go-signup-flow/internal/infrastructure/postgres"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

// seed creates a verified demo account, or marks the existing one verified.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	store := pginfra.NewUserRepository(pool)

	email := "demo@example.com"
	password := "password123"
	name := "demoUser"

	u, err := store.Find(ctx, repository.FieldEmail, email)
	if err != nil {
		log.Fatalf("failed to look up demo user: %v", err)
	}
	if u == nil {
		if u, err = store.Save(ctx, name, email, password); err != nil {
			log.Fatalf("failed to seed user: %v", err)
		}
	}

	now := time.Now()
	u.EmailVerified = true
	u.EmailVerificationTimestamp = &now
	u.ClearToken()
	if err := store.Update(ctx, u); err != nil {
		log.Fatalf("failed to verify demo user: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s name=%s password=%s state=%s\n", u.ID, u.Email, u.Name, password, u.State())
}
