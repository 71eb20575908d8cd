package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowd/flowd/internal/runtime"
)

// DefaultAdminListenAddr is SPEC_FULL.md §4.J's default admin surface
// address, deliberately separate from the FBP protocol listener.
const DefaultAdminListenAddr = "localhost:3570"

// AdminServer exposes /healthz and /metrics, never participating in the FBP
// Network Protocol itself. Grounded on cmd/api/main.go's mux.NewRouter +
// "/health" JSON handler, with the route table trimmed to the two endpoints
// SPEC_FULL.md calls for and promhttp.Handler wired in for /metrics.
type AdminServer struct {
	logger    *slog.Logger
	scheduler *runtime.Scheduler
	io        *ClientRegistry
	http      *http.Server
}

// NewAdminServer builds the admin HTTP surface bound to listenAddr (default
// DefaultAdminListenAddr).
func NewAdminServer(logger *slog.Logger, scheduler *runtime.Scheduler, io *ClientRegistry, listenAddr string) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	if listenAddr == "" {
		listenAddr = DefaultAdminListenAddr
	}
	a := &AdminServer{logger: logger, scheduler: scheduler, io: io}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", a.handleHealthz).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	a.http = &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := a.scheduler.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"service":   "flowd",
		"started":   status.Started,
		"running":   status.Running,
		"debug":     status.Debug,
		"tracing":   status.Tracing,
		"clients":   a.io.ClientCount(),
	})
}

// Run blocks serving the admin listener until Shutdown is called.
func (a *AdminServer) Run() error {
	a.logger.Info("admin server listening", "addr", a.http.Addr)
	if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.http.Shutdown(ctx)
}
