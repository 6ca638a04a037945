package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/noah-isme/learnhub-api/pkg/config"
	"github.com/noah-isme/learnhub-api/pkg/database"
)

func main() {
	var (
		command = flag.String("command", "up", "migration command (up, down, version)")
		steps   = flag.Int("steps", 0, "number of migrations to apply or roll back (0 = all)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch *command {
	case "up":
		err = database.Migrate(ctx, db, database.Up, *steps)
	case "down":
		if *steps == 0 && os.Getenv("CONFIRM_DROP") != "yes" {
			log.Fatal("Refusing to roll back every migration without CONFIRM_DROP=yes")
		}
		err = database.Migrate(ctx, db, database.Down, *steps)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = database.Version(db)
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
	if err != nil {
		log.Fatalf("Migration %s failed: %v", *command, err)
	}

	log.Printf("Migration %s completed", *command)
}
