package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server provides HTTP endpoints for health monitoring and, when a gRPC port
// is configured, the standard grpc.health.v1 service.
type Server struct {
	monitor    *Monitor
	server     *http.Server
	grpcPort   int
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
}

// NewServer creates a new health server. grpcPort 0 disables gRPC.
func NewServer(monitor *Monitor, port, grpcPort int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpcPort: grpcPort,
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	if grpcPort > 0 {
		s.grpcServer = grpc.NewServer()
		s.grpcHealth = grpchealth.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and, if enabled, the gRPC server.
// It blocks until the HTTP server stops.
func (s *Server) Start() error {
	if s.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
		if err != nil {
			return fmt.Errorf("failed to listen on grpc port: %w", err)
		}
		go func() {
			_ = s.grpcServer.Serve(lis)
		}()
	}

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) && s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	return err
}

// Stop stops the HTTP and gRPC servers.
func (s *Server) Stop(ctx context.Context) error {
	if s.grpcServer != nil {
		s.grpcHealth.Shutdown()
		s.grpcServer.GracefulStop()
	}
	return s.server.Shutdown(ctx)
}

// SyncGRPC copies the current system status into the gRPC health service.
func (s *Server) SyncGRPC(ctx context.Context) {
	if s.grpcHealth == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if s.monitor.CheckHealth(ctx).SystemStatus == StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
