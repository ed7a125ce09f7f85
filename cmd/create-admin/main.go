package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	"github.com/noah-isme/smart-edu-api/pkg/config"
	"github.com/noah-isme/smart-edu-api/pkg/database"
)

func main() {
	name := flag.String("name", "System Administrator", "admin display name")
	email := flag.String("email", "admin@smartedu.com", "admin email address")
	password := flag.String("password", "", "admin password (required)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: create-admin -password <password> [-name <name>] [-email <email>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)

	existing, err := users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		log.Fatalf("failed to check for existing admin: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("admin user already exists: %s\n", existing[0].Email)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	now := time.Now().UTC()
	admin := &models.User{
		ID:           uuid.NewString(),
		Name:         *name,
		Email:        *email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("failed to create admin user: %v", err)
	}

	fmt.Printf("admin user created: %s\n", admin.Email)
	fmt.Println("change this password after first login")
}
