package main

import (
	"context"
	"errors"
	"log"

	"auth-starter/core"
)

// seed applies migrations and provisions roles and users from the YAML file
// named by SEED_FILE. A missing file is not an error so the command can run
// unconditionally in compose setups.
func main() {
	cfg := core.Load()
	ctx := context.Background()

	seed, err := core.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		if errors.Is(err, core.ErrSeedFileMissing) {
			log.Printf("no seed file at %s, nothing to do", cfg.SeedFile)
			return
		}
		log.Fatalf("failed to load seed file: %v", err)
	}

	if err := core.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	userRepo := core.NewPgUserRepository(db)
	roleRepo := core.NewPgRoleRepository(db)

	if err := core.ApplySeed(ctx, userRepo, roleRepo, seed); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Printf("seed completed")
}
