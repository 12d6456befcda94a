package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// monitorRouter exposes run metrics, a health check and the live run feed.
func (r *ETLRunner) monitorRouter() *mux.Router {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws/runs", r.monitor.HandleConnections)

	return router
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Monitors int    `json:"monitors"`
	LastRun  string `json:"last_run,omitempty"`
}

func (r *ETLRunner) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Monitors: r.monitor.ClientCount()}
	code := http.StatusOK

	if err := r.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		code = http.StatusServiceUnavailable
	} else if last, err := r.etlLogRepo.GetLastSuccessfulRun(ctx); err == nil && last != nil {
		resp.LastRun = last.RunID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("Failed to encode health response: %v", err)
	}
}

// serveMonitor blocks until ctx is done or the listener fails.
func (r *ETLRunner) serveMonitor(ctx context.Context) error {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := &http.Server{
		Addr:         r.config.Monitor.Addr,
		Handler:      r.monitorRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("Monitor listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
