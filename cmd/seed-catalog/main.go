package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

func main() {
	var path string
	var dryRun bool
	flag.StringVar(&path, "catalog", "catalog.yaml", "Path to the YAML catalog")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the catalog without writing")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	catalog, err := repository.LoadCatalogFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Catalog %s ===\n", path)
	fmt.Printf("Classes:   %d\n", len(catalog.Classes))
	fmt.Printf("Questions: %d\n", len(catalog.Questions))
	fmt.Printf("Packages:  %d\n", len(catalog.Packages))
	fmt.Printf("Exams:     %d\n", len(catalog.Exams))
	fmt.Printf("Results:   %d\n", len(catalog.Results))

	if dryRun {
		fmt.Println("\nDry run: catalog is valid, nothing written.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if err := repository.NewPostgresStore(pool).Import(ctx, catalog); err != nil {
		log.Fatal().Err(err).Msg("Seed failed")
	}

	fmt.Println("\nSeed completed!")
}
