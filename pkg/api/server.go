package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/voltgrid/voltgrid/pkg/game"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/version"
)

// StatusProvider exposes the game loop's end-of-tick summary.
type StatusProvider interface {
	Status() game.Status
}

// Server is the debug HTTP surface: health, status, metrics, and the
// websocket transport when one is mounted.
type Server struct {
	port   int
	router *mux.Router
	status StatusProvider
}

type NewServerOptions struct {
	Port           int
	StatusProvider StatusProvider
	// MetricsHandler may be nil to disable the /metrics route.
	MetricsHandler http.Handler
}

func NewServer(opts NewServerOptions) *Server {
	s := &Server{
		port:   opts.Port,
		router: mux.NewRouter(),
		status: opts.StatusProvider,
	}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		s.router.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}
	return s
}

// Router exposes the underlying router so transports can mount routes.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down api server: %v", err)
		}
	}()

	log.Info("API server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Version string `json:"version"`
		game.Status
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response{
		Version: version.Get(),
		Status:  s.status.Status(),
	}); err != nil {
		log.Error("Failed to encode status: %v", err)
	}
}
