package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/escalopa/quizzr-dataflow/internal/adapter/postgres"
	"github.com/escalopa/quizzr-dataflow/internal/config"
	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

type questionEntry struct {
	Transcript string `yaml:"transcript"`
	Answer     string `yaml:"answer"`
}

type questionSet struct {
	Questions []questionEntry `yaml:"questions"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Import error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	setPath := flag.String("file", "", "path to the YAML question set")
	flag.Parse()

	if *setPath == "" {
		return fmt.Errorf("question set file is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer lg.Sync()

	data, err := os.ReadFile(*setPath)
	if err != nil {
		return fmt.Errorf("read question set: %w", err)
	}

	var set questionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("parse question set: %w", err)
	}
	if len(set.Questions) == 0 {
		return fmt.Errorf("question set is empty")
	}

	store, err := postgres.New(cfg.Postgres.DSN, lg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	imported := 0
	for i, entry := range set.Questions {
		question, err := domain.NewQuestion(entry.Transcript, entry.Answer)
		if err != nil {
			lg.Warn("skipping invalid question", "index", i, "error", err)
			continue
		}
		if err := store.CreateQuestion(ctx, question); err != nil {
			return fmt.Errorf("import question %d: %w", i, err)
		}
		imported++
	}

	lg.Info("question set imported", "total", len(set.Questions), "imported", imported)
	return nil
}
