package main

import (
	"context"
	"flag"
	"log"
	"os"

	"Kavach/internal/di"
	"Kavach/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults only when empty)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s store=%s decisions=%s", cfg.Environment, cfg.Portfolio.Store, cfg.Decisions.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
