// Package main is the entry point for the deal relay service. It bridges
// HubSpot CRM deal records, the FRED economic-data API, and the browser
// collateral-checklist widget.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Initialize structured logging
//  3. Open the SQLite mirror database when a data directory is configured,
//     otherwise fall back to the in-memory mirror
//  4. Wire clients, services, and HTTP handlers
//  5. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loanops/dealbridge/internal/clients/fred"
	"github.com/loanops/dealbridge/internal/clients/hubspot"
	"github.com/loanops/dealbridge/internal/config"
	"github.com/loanops/dealbridge/internal/database"
	"github.com/loanops/dealbridge/internal/events"
	"github.com/loanops/dealbridge/internal/modules/checklist"
	checklisthandlers "github.com/loanops/dealbridge/internal/modules/checklist/handlers"
	dealshandlers "github.com/loanops/dealbridge/internal/modules/deals/handlers"
	"github.com/loanops/dealbridge/internal/modules/rates"
	rateshandlers "github.com/loanops/dealbridge/internal/modules/rates/handlers"
	"github.com/loanops/dealbridge/internal/reliability"
	"github.com/loanops/dealbridge/internal/server"
	"github.com/loanops/dealbridge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.DevMode,
		Service: "dealbridge",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting deal relay service")

	// The mirror survives CRM outages. Without a data dir the service runs
	// stateless with an in-memory mirror.
	var mirrorDB *database.DB
	var store checklist.Store
	if cfg.DataDir != "" {
		mirrorDB, err = database.New(database.Config{
			Path: filepath.Join(cfg.DataDir, "mirror.db"),
			Name: "mirror",
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open mirror database")
		}
		defer mirrorDB.Close()

		store, err = checklist.NewSQLiteStore(mirrorDB.Conn(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize mirror store")
		}
		log.Info().Str("path", mirrorDB.Path()).Msg("Mirror database opened")
	} else {
		store = checklist.NewMemoryStore()
		log.Info().Msg("No data directory configured, using in-memory mirror")
	}

	eventManager := events.NewManager(log)

	hubspotClient := hubspot.NewClient(cfg.HubSpotToken, cfg.HubSpotBaseURL, log)
	fredClient := fred.NewClient(cfg.FREDAPIKey, cfg.FREDBaseURL, log)

	checklistService := checklist.NewService(hubspotClient, store, cfg.Properties, eventManager, log)
	ratesService := rates.NewService(fredClient, eventManager, log)

	var backupService *reliability.BackupService
	if cfg.Backup != nil && mirrorDB != nil {
		storage, err := reliability.NewObjectStorage(cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}
		backupService = reliability.NewBackupService(storage, mirrorDB, cfg.DataDir, cfg.Backup.Keep, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backup storage configured")
	}

	srv := server.New(server.Config{
		Log:              log,
		Config:           cfg,
		MirrorDB:         mirrorDB,
		EventManager:     eventManager,
		ChecklistHandler: checklisthandlers.NewHandler(checklistService, log),
		RatesHandler:     rateshandlers.NewHandler(ratesService, log),
		DealsHandler:     dealshandlers.NewHandler(hubspotClient, log),
		BackupService:    backupService,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.SignatureEnabled() {
		log.Info().Int("allowed_portals", len(cfg.AllowedPortals)).Msg("Request signature validation enabled")
	} else {
		log.Warn().Msg("Request signature validation disabled, no signing secret configured")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
