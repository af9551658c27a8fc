package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// BusStatus reports the message bus session
type BusStatus interface {
	IsConnected() bool
}

// stateReporter is implemented by buses that track a connection state machine
type stateReporter interface {
	StateName() string
}

// Pinger is any dependency that can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker provides health check functionality for the bridge process
type Checker struct {
	bus    BusStatus
	store  Pinger
	logger *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies
func NewChecker(bus BusStatus, store Pinger, logger *slog.Logger) *Checker {
	return &Checker{
		bus:    bus,
		store:  store,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Store  string `json:"store"`
	MQTT   string `json:"mqtt"`
	Bridge string `json:"bridge,omitempty"`
}

// HandlerFunc returns an HTTP handler function for liveness checks.
// Returns 200 if the process is alive without checking dependencies.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that checks all dependencies.
// A disconnected bus or an unreachable store reports "degraded" with 503.
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Store: "unknown",
			MQTT:  "unknown",
		}

		if h.bus != nil && h.bus.IsConnected() {
			services.MQTT = "connected"
		} else {
			services.MQTT = "disconnected"
		}
		if sr, ok := h.bus.(stateReporter); ok {
			services.Bridge = sr.StateName()
		}

		if h.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.store.Ping(ctx); err != nil {
				h.logger.Warn("State store health check failed", "error", err)
				services.Store = "disconnected"
			} else {
				services.Store = "connected"
			}
		} else {
			services.Store = "disconnected"
		}

		// Determine overall status
		status := "healthy"
		statusCode := http.StatusOK

		if services.Store == "disconnected" || services.MQTT == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}
		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
