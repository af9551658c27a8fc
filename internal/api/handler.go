package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saaga0h/shelf-bridge/internal/bridge"
	"github.com/saaga0h/shelf-bridge/internal/shelfstate"
)

// Commander issues display commands
type Commander interface {
	SendCommand(ctx context.Context, shelf int, cmd bridge.DisplayCommand, timeout time.Duration) (*bridge.Ack, error)
}

// StateReader reads stored shelf state
type StateReader interface {
	Read(ctx context.Context, shelf int) (*shelfstate.State, error)
}

// Handler serves the shelf HTTP API:
//
//	POST /api/shelves/{shelf}/display   show a product, wait for the display ack
//	GET  /api/shelves/{shelf}           latest stored readings
type Handler struct {
	commander Commander
	states    StateReader
	currency  string
	logger    *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(commander Commander, states StateReader, currency string, logger *slog.Logger) *Handler {
	return &Handler{
		commander: commander,
		states:    states,
		currency:  currency,
		logger:    logger,
	}
}

// DisplayRequest is the body of a display update
type DisplayRequest struct {
	Name            string  `json:"name"`
	CountryOfOrigin string  `json:"country_of_origin"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency,omitempty"`
	TimeoutMs       int     `json:"timeout_ms,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Routes builds the router with request logging and panic recovery
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.loggingMiddleware)
	r.Use(h.recoveryMiddleware)

	r.Get("/api/shelves/{shelf}", h.handleState)
	r.Post("/api/shelves/{shelf}/display", h.handleDisplay)
	return r
}

// statusWriter records the response status for request logging
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		h.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID)
	})
}

func (h *Handler) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("Panic recovered in HTTP handler", "error", err, "path", r.URL.Path)
				h.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	shelf, ok := h.shelfParam(w, r)
	if !ok {
		return
	}

	var req DisplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	if req.Name == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "name is required"})
		return
	}

	currency := h.currency
	if req.Currency != "" {
		currency = req.Currency
	}
	cmd := bridge.NewDisplayCommand(bridge.Product{
		Name:            req.Name,
		CountryOfOrigin: req.CountryOfOrigin,
		Price:           req.Price,
	}, currency)

	ack, err := h.commander.SendCommand(r.Context(), shelf, cmd, time.Duration(req.TimeoutMs)*time.Millisecond)
	switch {
	case err == nil:
		status := http.StatusOK
		if ack.TimedOut() {
			status = http.StatusGatewayTimeout
		}
		h.writeJSON(w, status, ack.Body)
	case errors.Is(err, bridge.ErrInvalidTarget):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
	case errors.Is(err, bridge.ErrNotStarted):
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: err.Error()})
	default:
		h.logger.Error("Display update failed", "shelf", shelf, "error", err)
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Detail: err.Error()})
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	shelf, ok := h.shelfParam(w, r)
	if !ok {
		return
	}

	st, err := h.states.Read(r.Context(), shelf)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, st)
	case errors.Is(err, shelfstate.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
	default:
		h.logger.Error("Failed to read shelf state", "shelf", shelf, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "state store unavailable"})
	}
}

func (h *Handler) shelfParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	shelf, err := strconv.Atoi(chi.URLParam(r, "shelf"))
	if err != nil || !shelfstate.ValidShelf(shelf) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Detail: "unknown shelf"})
		return 0, false
	}
	return shelf, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
