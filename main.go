package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/form-forge/ai"
	"github.com/mbolis/form-forge/app"
	"github.com/mbolis/form-forge/billing"
	"github.com/mbolis/form-forge/config"
	"github.com/mbolis/form-forge/database"
	"github.com/mbolis/form-forge/httpx"
	"github.com/mbolis/form-forge/log"
	"github.com/mbolis/form-forge/routes"
	"github.com/mbolis/form-forge/storage"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	var files storage.Store
	if cfg.Storage.Endpoint != "" {
		files, err = storage.NewMinio(context.Background(), cfg.Storage)
		if err != nil {
			log.Fatal("main.storage:", err)
		}
	} else {
		log.Warn("MINIO_ENDPOINT not set: file uploads disabled")
	}

	var generator ai.Generator
	if cfg.Gemini.APIKey != "" {
		generator, err = ai.NewGemini(context.Background(), cfg.Gemini)
		if err != nil {
			log.Fatal("main.ai:", err)
		}
	} else {
		log.Warn("GEMINI_API_KEY not set: AI form generation disabled")
	}

	payments := billing.New(cfg.Stripe)
	if payments == nil {
		log.Warn("STRIPE_SECRET_KEY not set: billing disabled")
	}

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Files:        files,
		Generator:    generator,
		Payments:     payments,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
