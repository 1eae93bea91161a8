package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"joke-bot/internal/config"
	"joke-bot/internal/importer"
	"joke-bot/internal/queue"
	"joke-bot/pkg/logger"
)

func main() {
	file := flag.String("file", "", "path to a JSONL file with jokes to import")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrEmptyBotToken) || errors.Is(err, config.ErrEmptyDBPassword) {
			fmt.Println("Note: Bot token and DB password not required for import")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	logLevel := "info"
	natsCfg := config.NATSConfig{
		URL:        "nats://localhost:4222",
		StreamName: "JOKES",
	}
	if cfg != nil {
		logLevel = cfg.App.LogLevel
		natsCfg = cfg.NATS
	} else if url := os.Getenv("NATS_URL"); url != "" {
		natsCfg.URL = url
	}

	logger.Init(logLevel, nil)

	q, err := queue.New(natsCfg)
	if err != nil {
		logger.Error("Failed to connect to NATS", logger.Err(err))
		os.Exit(1)
	}
	defer q.Close()

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("Failed to open import file", logger.Err(err), logger.String("file", *file))
		os.Exit(1)
	}
	defer f.Close()

	stats, err := importer.New(q).Run(context.Background(), f)
	if err != nil {
		logger.Error("Import failed",
			logger.Err(err),
			logger.Int("published", stats.Published),
			logger.Int("skipped", stats.Skipped),
		)
		os.Exit(1)
	}

	logger.Info("Import finished",
		logger.Int("published", stats.Published),
		logger.Int("skipped", stats.Skipped),
	)
}
