package main

import (
	"context"
	"fmt"
	"log"

	"estatecollab/internal/config"
	"estatecollab/internal/database"
	"estatecollab/internal/directory"
	"estatecollab/internal/domain/collaboration"
	"estatecollab/internal/domain/notification"
	jwtsvc "estatecollab/internal/pkg/jwt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := directory.Migrate(db); err != nil {
		log.Fatal("migrate directory failed:", err)
	}
	if err := collaboration.Migrate(db); err != nil {
		log.Fatal("migrate collaborations failed:", err)
	}
	if err := notification.Migrate(db); err != nil {
		log.Fatal("migrate notifications failed:", err)
	}

	// Cleanup old data (children first)
	log.Println("Cleaning old data...")
	for _, table := range []string{
		"notifications",
		"user_notification_preferences",
		"collaboration_step_notes",
		"collaboration_progress_steps",
		"collaboration_activities",
		"collaborations",
		"search_ads",
		"properties",
		"users",
	} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			log.Fatalf("clean %s failed: %v", table, err)
		}
	}

	ctx := context.Background()
	users := directory.NewUserRepository(db)
	posts := directory.NewPostRepository(db)

	// ================== USERS ==================
	log.Println("Creating users...")
	agents := []directory.User{
		{ID: 1, Email: "amelie@agence-rhone.fr", Name: "Amélie Martin", Role: "agent"},
		{ID: 2, Email: "bruno@immo-lyon.fr", Name: "Bruno Lefèvre", Role: "agent"},
		{ID: 3, Email: "chloe@maisons-est.fr", Name: "Chloé Girard", Role: "agent"},
	}
	for i := range agents {
		if err := users.Upsert(ctx, &agents[i]); err != nil {
			log.Fatalf("create user %s failed: %v", agents[i].Email, err)
		}
	}

	// ================== POSTS ==================
	log.Println("Creating properties and search ads...")
	listings := []directory.Listing{
		{Ref: collaboration.PropertyRef("prop-croix-rousse"), OwnerID: 1, Title: "T3 lumineux Croix-Rousse", City: "Lyon", Amount: 345000},
		{Ref: collaboration.PropertyRef("prop-confluence"), OwnerID: 1, Title: "Loft Confluence avec terrasse", City: "Lyon", Amount: 610000},
		{Ref: collaboration.PropertyRef("prop-annecy"), OwnerID: 3, Title: "Chalet vue lac", City: "Annecy", Amount: 890000},
		{Ref: collaboration.SearchAdRef("search-family-house"), OwnerID: 2, Title: "Maison familiale 4 chambres", City: "Villeurbanne", Amount: 550000},
		{Ref: collaboration.SearchAdRef("search-studio"), OwnerID: 3, Title: "Studio étudiant proche campus", City: "Grenoble", Amount: 120000},
	}
	for _, l := range listings {
		if err := posts.Upsert(ctx, l); err != nil {
			log.Fatalf("create post %s failed: %v", l.Ref, err)
		}
	}

	// ================== TOKENS ==================
	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)
	fmt.Println()
	fmt.Println("Seed completed. Bearer tokens:")
	for _, u := range agents {
		token, err := tokens.GenerateToken(u.ID, u.Role)
		if err != nil {
			log.Fatalf("token for %s failed: %v", u.Email, err)
		}
		fmt.Printf("  %-28s user_id=%d\n    %s\n", u.Email, u.ID, token)
	}
}
