package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfgops/wo-import-server/internal/client"
	"github.com/mfgops/wo-import-server/internal/httpapi"
	"github.com/mfgops/wo-import-server/internal/importer"
	"github.com/mfgops/wo-import-server/internal/session"
	"github.com/mfgops/wo-import-server/internal/version"
)

func main() {
	log.Printf("Starting %s", version.String())

	// Get configuration from environment
	allowedBaseDir := os.Getenv("ALLOWED_BASE_DIR")
	if allowedBaseDir == "" {
		allowedBaseDir = "/data/incoming"
		log.Printf("Using default ALLOWED_BASE_DIR: %s", allowedBaseDir)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	storeURL := os.Getenv("WO_STORE_URL")
	if storeURL == "" {
		storeURL = "http://localhost:9090/api"
		log.Printf("Using default WO_STORE_URL: %s", storeURL)
	}

	serverTimings := importer.NewTimings()
	records := client.NewStore(client.Config{
		BaseURL:   storeURL,
		Gzip:      os.Getenv("WO_STORE_GZIP") == "1",
		BasicUser: os.Getenv("WO_STORE_BASIC_USER"),
		BasicPass: os.Getenv("WO_STORE_BASIC_PASS"),
	}, serverTimings)

	sessions := session.NewStore()

	// Start execution worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker(ctx, sessions, records)

	// Setup HTTP server
	handler := httpapi.NewHandler(sessions, records, serverTimings, allowedBaseDir)
	router := httpapi.SetupRouter(handler)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel() // Cancel worker context

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// worker executes queued sessions one at a time, so a single session owns
// the write path to the record store.
func worker(ctx context.Context, sessions *session.Store, records importer.RecordStore) {
	for {
		id, err := sessions.NextSession(ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Printf("Error getting next session: %v", err)
			time.Sleep(time.Second)
			continue
		}

		runSession(ctx, id, sessions, records)
	}
}

// runSession claims a queued session and drives its plan to completion
func runSession(ctx context.Context, id string, sessions *session.Store, records importer.RecordStore) {
	sess, runCtx, err := sessions.StartRun(ctx, id)
	if err != nil {
		// Stepped back to preview before pickup, nothing to do
		log.Printf("Session %s: skipping queued run: %v", id, err)
		return
	}

	// A panic out of the run must not take the worker down; the session ends
	// in result with the failure recorded.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Session %s: execution panic: %v", id, r)
			sessions.FailRun(id, importer.Summary{}, fmt.Errorf("internal execution failure: %v", r))
		}
	}()

	log.Printf("Session %s: execution started (%d create, %d update)",
		id, len(sess.Plan.ToCreate), len(sess.Plan.ToUpdate))

	runner := importer.NewRunner(records, importer.EntityWorkOrders, sess.Timings)
	sum := runner.Run(runCtx, sess.Plan, sessions.Reporter(id))

	sessions.FinishRun(id, sum)
	log.Printf("Session %s: execution finished: %d created, %d updated, %d failed",
		id, sum.Created, sum.Updated, sum.Failed)
}
