// Command trafficd serves the vehicle tracking API: session management
// and frame ingest over HTTP and WebSocket, crossing records in SQLite,
// and live record streaming to subscribers.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/roadsight-data/roadsight/internal/api"
	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/db"
	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/session"
	"github.com/roadsight-data/roadsight/internal/version"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
	"github.com/roadsight-data/roadsight/internal/ws"
)

var (
	configFile = flag.String("config", "", "Path to the YAML config file (default: roadsight.yml, then config/roadsight.yml)")
	listen     = flag.String("listen", "", "Listen address, overrides the config file")
)

func main() {
	flag.Parse()

	// .env feeds local overrides in development; absence is fine.
	godotenv.Load()

	cfg, err := config.LoadAppConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	// The admin token is a secret, so the environment beats the file.
	if token := os.Getenv("ROADSIGHT_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}

	configureDebugStreams(cfg.Debug)

	store, err := db.NewDB(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer store.Close()

	retention := db.NewRetentionWorker(store, cfg.Store.RetentionDays)
	retention.Start()
	defer retention.Stop()

	hub := ws.NewRecordHub()
	sessions := session.NewManager(store, hub)
	if cfg.Tracking != "" {
		defaults, err := config.LoadSessionConfig(cfg.Tracking)
		if err != nil {
			log.Fatalf("failed to load tracking defaults: %v", err)
		}
		sessions.SetDefaults(defaults)
		monitoring.Logf("tracking defaults loaded from %s", cfg.Tracking)
	}

	// Create a wait group for the HTTP server routine
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (SQL console, backup) behind
		// the bearer token; no token, no admin surface
		if cfg.Server.AdminToken != "" {
			admin := http.NewServeMux()
			store.AttachAdminRoutes(admin)
			mux.Handle("/debug/", api.RequireToken(cfg.Server.AdminToken, admin))
		}

		apiMux := api.NewServer(sessions, store, cfg.Server.AdminToken).ServeMux()
		mux.Handle("/api/", api.LoggingMiddleware(apiMux))
		mux.Handle("/healthz", apiMux)

		// WebSocket endpoints stay outside the logging middleware so the
		// upgrade can hijack the connection.
		mux.Handle("/ws/records", ws.NewSubscribeHandler(hub, sessions))
		mux.Handle("/ws/ingest", ws.NewIngestHandler(sessions))

		server := &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: mux,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			monitoring.Logf("trafficd %s (%s) listening on %s", version.Version, version.GitSHA, cfg.Server.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	sessions.CloseAll()
	monitoring.Logf("graceful shutdown complete")
}

// configureDebugStreams maps the comma separated stream names from the
// config onto the pipeline log streams.
func configureDebugStreams(streams string) {
	var ops, diag, trace io.Writer
	for _, name := range strings.Split(streams, ",") {
		switch strings.TrimSpace(name) {
		case "ops":
			ops = os.Stderr
		case "diag":
			diag = os.Stderr
		case "trace":
			trace = os.Stderr
		case "":
		default:
			log.Printf("unknown debug stream %q (want ops, diag or trace)", name)
		}
	}
	pipeline.SetLogWriters(ops, diag, trace)
}
