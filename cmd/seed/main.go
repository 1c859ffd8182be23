package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/config"
	"github.com/xtrntr/landmarket/internal/db"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/models"
	"github.com/xtrntr/landmarket/internal/obs"
	"github.com/xtrntr/landmarket/internal/registry"
	"github.com/xtrntr/landmarket/migrations"
)

const demoPassword = "landmarket"

var demoListings = []struct {
	seller models.Identity
	input  marketplace.ListingInput
}{
	{"farmer1", marketplace.ListingInput{AssetID: 1001, Price: 250000, Title: "River meadow", Description: "Four hectares of grazing land", Category: "agricultural", Tags: []string{"river", "pasture"}}},
	{"farmer1", marketplace.ListingInput{AssetID: 1002, Price: 90000, Title: "Orchard strip", Description: "Apple orchard with well access", Category: "agricultural", Tags: []string{"orchard"}}},
	{"builder2", marketplace.ListingInput{AssetID: 2001, Price: 480000, Title: "Corner lot on Main St", Description: "Zoned mixed use", Category: "commercial", Tags: []string{"zoned", "downtown"}}},
	{"builder2", marketplace.ListingInput{AssetID: 2002, Price: 150000, Title: "Hillside plot", Description: "Sea view, needs road access", Category: "residential", Tags: []string{"view"}}},
}

// Seed the database with demo users and listings
func main() {
	ctx := context.Background()
	cfg := config.Load()
	logger := obs.InitLogger(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required for seeding")
		os.Exit(1)
	}
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(ctx)
	if err := migrations.Apply(ctx, database.Pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	market := marketplace.NewService(database, registry.NewClient(cfg.RegistryTimeout), marketplace.WithLogger(logger))

	// Listings are only seeded once
	existing, err := database.ListListings(ctx)
	if err != nil {
		logger.Error("failed to check listings", "error", err)
		os.Exit(1)
	}
	if len(existing) > 0 {
		fmt.Printf("Database already has %d listings. No need to seed.\n", len(existing))
		return
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.TokenTTL)
	for _, username := range []string{"farmer1", "builder2", "buyer3"} {
		if _, err := authService.Register(ctx, username, demoPassword); err != nil && !errors.Is(err, auth.ErrUsernameTaken) {
			logger.Error("failed to create user", "username", username, "error", err)
			os.Exit(1)
		}
	}

	for _, d := range demoListings {
		l, err := market.CreateListing(ctx, d.seller, d.input)
		if err != nil {
			logger.Error("failed to create listing", "title", d.input.Title, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Created listing %d: %s (%d)\n", l.ID, l.Title, l.Price)
	}

	if cfg.RegistryAddress != "" {
		if _, err := market.SetRegistryAddress(ctx, "seed", cfg.RegistryAddress); err != nil {
			logger.Error("failed to set registry address", "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Seeded %d listings. Users farmer1, builder2, buyer3 use password %q.\n", len(demoListings), demoPassword)
}
