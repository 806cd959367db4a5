// Package server provides the HTTP API of the Hearth hub.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hearth-home/hearth/internal/version"
	"github.com/hearth-home/hearth/pkg/models"
	"github.com/hearth-home/hearth/pkg/plugin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Hub is the orchestrator surface the server drives.
// Defined here (consumer-side) rather than importing the concrete type.
type Hub interface {
	Devices() []*models.Device
	Device(id models.DeviceID) (*models.Device, bool)
	Descriptors(classID models.DeviceClassID) []models.DeviceDescriptor
	DiscoverDevices(ctx context.Context, classID models.DeviceClassID, params models.ParamList) models.DeviceError
	AddConfiguredDevice(ctx context.Context, classID models.DeviceClassID, name string, params models.ParamList, id models.DeviceID) (models.DeviceID, models.DeviceError)
	AddConfiguredDeviceFromDescriptor(ctx context.Context, classID models.DeviceClassID, name string, descriptorID models.DeviceDescriptorID, id models.DeviceID) (models.DeviceID, models.DeviceError)
	PairDevice(ctx context.Context, classID models.DeviceClassID, name string, params models.ParamList) (models.PairingTransactionID, models.SetupMethod, models.DeviceError)
	PairDeviceFromDescriptor(ctx context.Context, classID models.DeviceClassID, name string, descriptorID models.DeviceDescriptorID) (models.PairingTransactionID, models.SetupMethod, models.DeviceError)
	ConfirmPairing(ctx context.Context, tx models.PairingTransactionID, secret string) models.DeviceError
	RemoveConfiguredDevice(ctx context.Context, id models.DeviceID) models.DeviceError
	ExecuteAction(ctx context.Context, action models.Action) models.DeviceError
}

// Catalog is the plugin host surface the server reads and configures.
type Catalog interface {
	Plugins() []plugin.Info
	SupportedVendors() []models.Vendor
	SupportedDevices(vendorID models.VendorID) []models.DeviceClass
	FindDeviceClass(id models.DeviceClassID) models.DeviceClass
	PluginConfig(id models.PluginID) (models.ParamList, bool)
	SetPluginConfig(ctx context.Context, id models.PluginID, params models.ParamList) models.DeviceError
}

// ReadinessChecker verifies that the server is ready to serve traffic.
// Returns nil if ready, an error describing why not otherwise.
type ReadinessChecker func(ctx context.Context) error

// RouteRegistrar allows external packages to register routes on the server
// without creating import cycles (consumer-side interface).
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the Hearth HTTP server.
type Server struct {
	httpServer *http.Server
	hub        Hub
	catalog    Catalog
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// New creates a Server with middleware and routes. Additional route
// registrars (the websocket endpoint, for one) can be passed to mount extra
// surfaces.
func New(addr string, hub Hub, catalog Catalog, logger *zap.Logger, ready ReadinessChecker, extraRoutes ...RouteRegistrar) *Server {
	mux := http.NewServeMux()

	s := &Server{
		hub:     hub,
		catalog: catalog,
		logger:  logger,
		mux:     mux,
		ready:   ready,
	}

	s.registerRoutes()
	for _, r := range extraRoutes {
		r.RegisterRoutes(mux)
	}

	// Middleware chain: outermost listed first.
	handler := Chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, []string{"/healthz", "/readyz", "/metrics"}),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, []string{"/healthz", "/readyz", "/metrics"}),
	)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// registerRoutes sets up all core routes.
func (s *Server) registerRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API endpoints.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/vendors", s.handleVendors)
	s.mux.HandleFunc("GET /api/v1/device-classes", s.handleDeviceClasses)
	s.mux.HandleFunc("GET /api/v1/device-classes/{id}", s.handleDeviceClass)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.HandleFunc("GET /api/v1/plugins/{id}/config", s.handleGetPluginConfig)
	s.mux.HandleFunc("PUT /api/v1/plugins/{id}/config", s.handleSetPluginConfig)
	s.mux.HandleFunc("GET /api/v1/devices", s.handleDevices)
	s.mux.HandleFunc("POST /api/v1/devices", s.handleAddDevice)
	s.mux.HandleFunc("GET /api/v1/devices/{id}", s.handleDevice)
	s.mux.HandleFunc("DELETE /api/v1/devices/{id}", s.handleRemoveDevice)
	s.mux.HandleFunc("GET /api/v1/devices/{id}/states", s.handleDeviceStates)
	s.mux.HandleFunc("POST /api/v1/devices/{id}/actions", s.handleExecuteAction)
	s.mux.HandleFunc("POST /api/v1/discoveries", s.handleDiscover)
	s.mux.HandleFunc("GET /api/v1/discoveries/{classId}", s.handleDescriptors)
	s.mux.HandleFunc("POST /api/v1/pairings", s.handlePair)
	s.mux.HandleFunc("POST /api/v1/pairings/{id}/confirm", s.handleConfirmPairing)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleHealthz is a liveness probe -- returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz checks readiness -- returns 200 if the server can serve traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version map[string]string `json:"version"`
}

// handleHealth returns detailed health information.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "hearth",
		Version: version.Map(),
	})
}
