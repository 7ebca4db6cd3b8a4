package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camguard/internal/alert"
	"camguard/internal/analysis"
	"camguard/internal/config"
	"camguard/internal/eventbus"
	"camguard/internal/framestore"
	"camguard/internal/httpapi"
	"camguard/internal/manager"
	"camguard/internal/store"
	"camguard/internal/stream"
	"camguard/internal/vlm"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("[Main] Connected to store, schema ensured")

	vlmClient, err := vlm.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to build VLM client: %v", err)
	}
	log.Printf("[Main] VLM backend: %s", cfg.VlmBackend)

	frameStore := framestore.New()
	bus := eventbus.New()

	alerts := alert.New(cfg.Alert, func(ctx context.Context) (string, bool) {
		number, ok, err := db.AlertToNumber(ctx)
		if err != nil {
			log.Printf("[Main] alert destination lookup failed, falling back to configured default: %v", err)
			return "", false
		}
		return number, ok
	})

	queue := make(chan stream.CapturedFrame, cfg.FrameQueueSize)

	streamMgr := manager.New(db, frameStore, queue)
	if err := streamMgr.StartAll(ctx); err != nil {
		log.Fatalf("Failed to start streams: %v", err)
	}
	log.Printf("[Main] Stream manager started")

	pool := analysis.New(cfg.AnalysisWorkers, queue, vlmClient, db, bus, alerts)
	go pool.Run(ctx)
	log.Printf("[Main] Analysis pool started: workers=%d queue=%d", cfg.AnalysisWorkers, cfg.FrameQueueSize)

	mux := http.NewServeMux()
	api := httpapi.New(frameStore, bus)
	api.Routes(mux)

	addr := cfg.ServerHost + ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:    addr,
		Handler: withCORS(mux),
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		log.Printf("  - Snapshot HTTP: /api/streams/{id}/snapshot")
		log.Printf("  - Live view HTTP: /api/streams/{id}/live")
		log.Printf("  - Event WebSocket: /ws/events")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Main] shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] HTTP server shutdown error: %v", err)
	}

	streamMgr.StopAll()
	close(queue)
	log.Printf("[Main] shutdown complete")
}

// withCORS adds CORS headers to the response.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
