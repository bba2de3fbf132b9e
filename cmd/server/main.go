package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/gosimulado"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", ":8080", "Listen address")
		verbose    = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := serve(*configPath, *addr); err != nil {
		slog.Error("server: exiting", "error", err)
		os.Exit(1)
	}
}

// serve builds the engine from the config file and environment
// (GOSIMULADO_*, plus GOSIMULADO_API_KEY and GOSIMULADO_CORS_ORIGINS for
// the HTTP layer) and runs until SIGINT or SIGTERM.
func serve(configPath, addr string) error {
	cfg := gosimulado.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = gosimulado.LoadConfig(configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	engine, err := gosimulado.New(cfg)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:        addr,
		Handler:     newServer(engine, os.Getenv("GOSIMULADO_API_KEY"), os.Getenv("GOSIMULADO_CORS_ORIGINS")),
		ReadTimeout: 60 * time.Second,
		// No write timeout: extracting a large exam can take minutes.
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr, "backend", cfg.Backend, "store", engine.Store() != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server: stopped")
	return nil
}

// newServer registers the routes and wraps them in the middleware chain:
// recovery -> cors -> auth -> logging -> mux.
func newServer(engine gosimulado.Engine, apiKey, corsOrigins string) http.Handler {
	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("POST /update", h.handleUpdate)
	mux.HandleFunc("POST /update-all", h.handleUpdateAll)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /questions", h.handleListQuestions)
	mux.HandleFunc("GET /questions/{id}", h.handleGetQuestion)
	mux.HandleFunc("GET /questions/{id}/images/{n}", h.handleQuestionImage)
	mux.HandleFunc("GET /questions/{id}/similar", h.handleSimilar)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("GET /health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
