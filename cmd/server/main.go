package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/app"
	"github.com/agenthands/unison/internal/config"
	"github.com/agenthands/unison/internal/logger"
	"github.com/agenthands/unison/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("config/config.toml"); err == nil {
			cfgPath = "config/config.toml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close(ctx)

	srv := server.NewServer(a.Engine, lg.Named("http"))
	r := srv.SetupRouter()

	lg.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("backend", cfg.Store.Backend))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		lg.Error("server stopped", zap.Error(err))
	}
}
