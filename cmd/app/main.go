package main

import (
	"flag"
	"log"
	"os"

	"OVIP/internal/di"
	"OVIP/pkg/config"
)

func main() {
	configPath := flag.String("config", envOr("OVIP_CONFIG", "config/config.yaml"), "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s source=%s cutoff=%s", cfg.Environment, cfg.Data.Source, cfg.Features.TrainCutoff)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
