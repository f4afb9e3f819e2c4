package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/config"
	"cardiopredict/logging"
	"cardiopredict/ml"
	"cardiopredict/predict"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file")
	modelPath := flag.String("model", "", "artifact path, overrides the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}

	// the form owns stdout; log only warnings to stderr
	cfg.Log.Level = "warn"
	cfg.Log.Format = "console"
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	artifact, loadErr := ml.LoadArtifact(cfg.Model.Path)
	if loadErr != nil {
		logger.Warn("model not loaded", zap.String("path", cfg.Model.Path), zap.Error(loadErr))
	}
	validator := clinical.NewValidator(cfg.CategoryPolicy())
	service := predict.NewService(artifact, loadErr, validator, predict.WithLogger(logger.Logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := newForm(os.Stdin, os.Stdout, validator, service).Run(ctx); err != nil {
		logger.Fatal("wizard failed", zap.Error(err))
	}
}
