package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"konsult/internal/config"
	"konsult/internal/database"
	"konsult/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ConsultantsConfig struct {
	Consultants []models.ConsultantSeed `yaml:"consultants"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedsPath = flag.String("consultants", "configs/consultants.yaml", "path to consultants.yaml")
		dbPath    = flag.String("db", "./data/konsult.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*seedsPath)
	if err != nil {
		return fmt.Errorf("read consultants: %w", err)
	}
	var cfg ConsultantsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse consultants: %w", err)
	}
	if len(cfg.Consultants) == 0 {
		return fmt.Errorf("no consultants in yaml")
	}
	if err = config.ValidateConsultantSeeds(cfg.Consultants); err != nil {
		return fmt.Errorf("validate consultants: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := range cfg.Consultants {
		seed := &cfg.Consultants[i]
		if err = db.UpsertConsultantSeed(ctx, seed); err != nil {
			return fmt.Errorf("seed %s: %w", seed.Name, err)
		}
	}

	fmt.Printf("done: seeded=%d\n", len(cfg.Consultants))
	return nil
}
