package main

import (
	"context"
	"log"

	"voicelegal-backend/config"
	"voicelegal-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	for _, stmt := range repository.Schema {
		if _, err := pool.Exec(ctx, stmt.SQL); err != nil {
			log.Fatalf("Failed to create %s: %v", stmt.Name, err)
		}
		log.Printf("✓ Created %s", stmt.Name)
	}

	log.Println("✅ Schema is up to date")
}
