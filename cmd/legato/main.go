package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"legato/internal/browse"
	"legato/internal/catalog"
	"legato/internal/config"
	"legato/internal/metadata"
	"legato/internal/scanner"
	"legato/internal/watcher"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	strict := flag.Bool("strict", false, "exit on scan failures instead of continuing in degraded mode")
	flag.Parse()

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Pick up ZEROCOPY_* overrides from a local .env if one exists
	if err := godotenv.Load(".env"); err == nil {
		logger.Debug("Loaded environment overrides from .env")
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyLogging(logger, cfg)

	// Check that every library root exists
	for _, root := range cfg.Library.Roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			logger.WithField("root", root).Fatal("Media directory does not exist. Please create it and add your media files.")
		}
	}

	// Open the catalog engine
	engine, err := catalog.NewEngine(cfg.EngineOptions())
	if err != nil {
		logger.WithError(err).Fatal("Error opening catalog")
	}
	defer engine.Close()

	// Scan the library
	extractor := metadata.NewExtractor(cfg.Library.SupportedFormats)
	sc := scanner.NewScanner(engine, extractor, scanner.Options{
		Extensions:      cfg.Library.SupportedFormats,
		ExcludePatterns: cfg.Library.ExcludePatterns,
		FollowSymlinks:  cfg.Library.FollowSymlinks,
	})

	ctx := context.Background()
	if cfg.Library.ScanOnStartup {
		for _, root := range cfg.Library.Roots {
			if _, err := sc.Scan(ctx, root); err != nil {
				if *strict {
					logger.WithError(err).WithField("root", root).Fatal("Library scan failed")
				}
				logger.WithError(err).WithField("root", root).Error("Library scan failed, continuing with existing catalog")
			}
		}
		if stats := engine.Stats(); stats.TotalFiles == 0 {
			logger.WithField("supported_formats", cfg.Library.SupportedFormats).Warn("No supported media files found in library roots")
		}
	}

	// Start the file watcher
	var w *watcher.Watcher
	if cfg.Watcher.Enabled {
		w, err = watcher.NewWatcher(sc, cfg.DebounceWindow())
		if err != nil {
			logger.WithError(err).Fatal("Error creating file watcher")
		}
		for _, root := range cfg.Library.Roots {
			if err := w.AddRoot(root); err != nil {
				logger.WithError(err).WithField("root", root).Warn("Could not watch media root")
			}
		}
		w.Start()
	}

	// The browser is handed to the UPnP transport layer; resolving the root
	// container here doubles as a readiness probe.
	browser := browse.NewBrowser(engine)
	if _, err := browser.Browse(ctx, browse.RootID); err != nil {
		logger.WithError(err).Fatal("Catalog is not browsable")
	}
	logger.Info("Legato catalog ready")

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Received shutdown signal")
	if w != nil {
		if err := w.Close(); err != nil {
			logger.WithError(err).Warn("File watcher shutdown failed")
		}
	}
}

// applyLogging configures the startup logger from the logging section.
func applyLogging(logger *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.Logging.File != "" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger.SetOutput(f)
		} else {
			logger.WithError(err).Warn("Could not open log file, logging to stderr")
		}
	}
}
