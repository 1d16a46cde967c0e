package main

import (
	"context"
	"flag"
	"log"

	"voicelegal-backend/config"
	"voicelegal-backend/models"
	"voicelegal-backend/repository"
	"voicelegal-backend/seed"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	file := flag.String("file", "", "YAML file with case types (defaults to the built-in set)")
	flush := flag.Bool("flush", false, "delete existing case types before seeding")
	flag.Parse()

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var defs []models.CaseTypeDefinition
	if *file != "" {
		defs, err = seed.LoadFile(*file)
	} else {
		defs, err = seed.Default()
	}
	if err != nil {
		log.Fatalf("Failed to load seed data: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := repository.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	repo := repository.NewCaseTypeRepository(pool)
	if *flush {
		if err := repo.DeleteAll(ctx); err != nil {
			log.Fatalf("Failed to flush case types: %v", err)
		}
		log.Println("✓ Existing case types deleted")
	}

	for i := range defs {
		if err := repo.Upsert(ctx, &defs[i]); err != nil {
			log.Fatalf("Failed to seed %s: %v", defs[i].Name, err)
		}
		log.Printf("✓ %s (id %d, %d keywords, %d questions)",
			defs[i].Name, defs[i].ID, len(defs[i].Keywords), len(defs[i].Questions))
	}

	log.Printf("✅ Seeded %d case types", len(defs))
}
