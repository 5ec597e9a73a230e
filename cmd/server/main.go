package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"chatvault/internal/api"
	"chatvault/internal/config"
	"chatvault/internal/logger"
	"chatvault/internal/reconcile"
	"chatvault/internal/storage"
	"chatvault/internal/vault"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		bootLog := logger.New("chatvault-server", logger.Options{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New("chatvault-server", logger.Options{Level: cfg.LogLevel})
	cfg.Log(log)

	naming, err := cfg.NamingOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid naming settings")
	}

	notes, err := vault.NewLocal(cfg.VaultDir)
	if err != nil {
		log.Fatal().Err(err).Str("vault_dir", cfg.VaultDir).Msg("Vault unavailable")
	}
	store, err := storage.Open(cfg.StateDriver, cfg.ResolvedStatePath())
	if err != nil {
		log.Fatal().Err(err).Str("state_path", cfg.ResolvedStatePath()).Msg("State store unavailable")
	}
	defer store.Close()

	im := reconcile.NewImporter(notes, store, reconcile.Options{
		Naming:          naming,
		Provider:        cfg.Provider,
		ReportFolder:    cfg.ReportFolder,
		IncrementalSave: cfg.IncrementalSave,
	}, log)

	router := mux.NewRouter()
	api.New(im, log).Register(router)

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      withCORS(router),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("vault_dir", cfg.VaultDir).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// withCORS lets a browser front end on another origin call the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Exported-At")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
