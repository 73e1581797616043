//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/database"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/pkg/config"
	"github.com/hugh/agencydesk/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx := context.Background()

	email := os.Getenv("ADMIN_EMAIL")
	name := os.Getenv("ADMIN_NAME")
	if email == "" {
		email = "owner@example.com"
	}
	if name == "" {
		name = "Owner"
	}

	// Sign the owner in as if they had come back from the identity provider.
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)
	resp, err := authService.CompleteSignIn(ctx, "seed", &auth.UserInfo{
		Subject: "seed-" + email,
		Email:   email,
		Name:    name,
	})
	if err != nil {
		log.Fatalf("failed to create owner: %v", err)
	}

	repo := repository.New(db, nil, logger)
	org, _, err := repo.CreateOrganization(ctx, resp.User, "Demo Agency")
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProvisioned) {
			fmt.Printf("Owner already provisioned: %s\n", email)
			return
		}
		log.Fatalf("failed to create organization: %v", err)
	}

	for _, c := range []models.Client{
		{Name: "Northwind Bakery", Email: "hello@northwind.example.com", Status: models.ClientStatusActive, Plan: "retainer", Progress: 60},
		{Name: "Contoso Fitness", Email: "team@contoso.example.com", Status: models.ClientStatusOnboarding, Plan: "launch", Progress: 15},
	} {
		c := c
		c.OrgID = org.ID
		if err := repo.CreateClient(ctx, &c); err != nil {
			log.Fatalf("failed to create client %q: %v", c.Name, err)
		}
	}

	fmt.Printf("Seed data created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Organization: %s (%s)\n", org.Name, org.Slug)
	fmt.Printf("Token: %s\n", resp.Token)
}
