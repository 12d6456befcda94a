// Package routes exposes the warehouse over a read-only JSON API.
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/social_metrics/ETL/utils"
	"github.com/LilVoxy/social_metrics/database"
)

// SetupRoutes registers the API handlers on router.
func SetupRoutes(router *mux.Router, reader *database.Reader, logger *utils.ETLLogger) {
	h := &handlers{reader: reader, logger: logger}

	router.Use(CORSMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.health).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/platforms", h.platforms).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/facts", h.facts).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/runs", h.runs).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/runs/state", h.runState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/runs/{runId}", h.runSummary).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/trends", h.trends).Methods(http.MethodGet, http.MethodOptions)
}

// CORSMiddleware allows browser dashboards on other origins to read the API.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
