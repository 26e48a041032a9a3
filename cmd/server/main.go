package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ankigen/internal/anki"
	"ankigen/internal/api"
	"ankigen/internal/config"
	"ankigen/internal/services"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	upstream := services.NewUpstreamCaller(cfg, logger)
	if !upstream.Configured() {
		logger.Warn("no upstream credential configured; all runs will use the offline fallback extractor")
	}
	extractor := services.NewExtractorService(upstream, cfg, logger)
	pdfService := services.NewPDFService()
	ankiClient := anki.NewClient(cfg.AnkiURL, logger)

	server := api.NewServer(extractor, pdfService, ankiClient, logger, cfg.DeckName, cfg.UploadDir)

	mux := http.NewServeMux()
	mux.Handle("/api/", server.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("listening", "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation runs are slow
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
