// Ends every exam recording that has outlived its exam length.
//
// The server does this on every read and, when sweep_interval_seconds is
// set, in the background. Run this after the service was down for a while
// so stored end times are correct before anyone reads them.
//
// Usage: go run scripts/expire_recordings.go [-config configs/config.yaml]

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"proctor_backend/internal/config"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/service"
	"proctor_backend/pkg/database"
	"proctor_backend/pkg/logger"
	"time"

	"gopkg.in/yaml.v3"
)

type scriptConfig struct {
	Server     config.ServerConfig   `yaml:"server"`
	Database   config.DatabaseConfig `yaml:"database"`
	Proctoring struct {
		StorageRetryAttempts int `yaml:"storage_retry_attempts"`
	} `yaml:"proctoring"`
}

func main() {
	path := flag.String("config", "configs/config.yaml", "config file")
	flag.Parse()

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}

	var cfg scriptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	logger.InitLogger(&config.Config{Server: cfg.Server})

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	recordings := service.NewRecordingService(
		repository.NewExamRecordingRepository(db),
		repository.NewExamRepository(db),
		repository.NewQueryEngine(db, cfg.Proctoring.StorageRetryAttempts),
		nil, nil, nil, nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := recordings.ExpireOverdue(ctx)
	if err != nil {
		log.Fatalf("Sweep failed after %d recordings: %v", n, err)
	}
	log.Printf("Ended %d overdue recordings", n)
}
