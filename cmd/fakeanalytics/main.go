// Command fakeanalytics serves the analytics endpoints the dashboard service
// consumes from in-memory data, for local development.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	port := os.Getenv("FAKE_ANALYTICS_PORT")
	if port == "" {
		port = "9000"
	}

	backend := newBackend(logger)
	backend.seed()

	logger.Info("Fake analytics backend starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, backend.router()); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
