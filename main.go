package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/config"
	"cardiopredict/db"
	qhttp "cardiopredict/http"
	"cardiopredict/logging"
	"cardiopredict/metrics"
	"cardiopredict/ml"
	"cardiopredict/predict"
	"cardiopredict/wizard"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, configPath string, logger *logging.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	// 2. Load the model. A missing or broken artifact keeps the service up
	// with predictions reported as unavailable.
	artifact, loadErr := ml.LoadArtifact(cfg.Model.Path)
	if loadErr != nil {
		logger.Warn("model not loaded, predictions unavailable",
			zap.String("path", cfg.Model.Path), zap.Error(loadErr))
	} else {
		logger.Info("model loaded",
			zap.String("path", cfg.Model.Path),
			zap.String("model_type", artifact.ModelType),
			zap.String("fingerprint", artifact.Schema.Fingerprint()))
	}

	opts := []predict.Option{predict.WithLogger(logger.Logger)}
	if collector != nil {
		collector.SetModelLoaded(loadErr == nil)
		opts = append(opts, predict.WithRecorder(collector))
	}
	validator := clinical.NewValidator(cfg.CategoryPolicy())
	service := predict.NewService(artifact, loadErr, validator, opts...)

	sessions := wizard.NewStore(cfg.Wizard.MaxSessions, cfg.Wizard.SessionTTL)
	if collector != nil {
		collector.TrackWizardSessions(sessions.Len)
	}
	api := &qhttp.API{
		Predictions: service,
		Wizard:      sessions,
		Metrics:     collector,
		Logger:      logger.Logger,
	}

	// 3. Open the run log
	if cfg.Database.Path != "" {
		store, openErr := db.Open(cfg.Database.Path)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, store.Close()) }()
		api.Runs = store
		logger.Info("run log opened", zap.String("path", cfg.Database.Path))
	}

	// 4. Only the log level is applied on reload; everything else needs a restart.
	if err := config.Watch(ctx, configPath, logger.Logger, func(next *config.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn("ignoring log level", zap.Error(err))
		}
	}); err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	// 5. Start HTTP server
	server := qhttp.NewServer(cfg.HTTP, api)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	return multierr.Append(server.Stop(context.Background()), <-errCh)
}
