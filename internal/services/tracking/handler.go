package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

// Handler handles HTTP requests for the tracking service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new tracking handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes mounts the tracking endpoints on r
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.withLogging(h.HealthCheck))
	r.Get("/api/restaurants/{restaurantId}/kitchen", h.withLogging(h.KitchenBoard))
	r.Get("/api/restaurants/{restaurantId}/orders/{orderId}/track", h.withLogging(h.GetOrderStatus))
}

// GetOrderStatus handles GET /api/restaurants/{restaurantId}/orders/{orderId}/track
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request, requestID string) {
	restaurantID, err1 := uuid.Parse(chi.URLParam(r, "restaurantId"))
	orderID, err2 := uuid.Parse(chi.URLParam(r, "orderId"))
	if err1 != nil || err2 != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid restaurant or order id", requestID)
		return
	}

	status, err := h.service.GetOrderStatus(r.Context(), restaurantID, orderID, requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}
	h.writeJSON(w, http.StatusOK, status, requestID)
}

// KitchenBoard handles GET /api/restaurants/{restaurantId}/kitchen
func (h *Handler) KitchenBoard(w http.ResponseWriter, r *http.Request, requestID string) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "restaurantId"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid restaurant id", requestID)
		return
	}

	board, err := h.service.KitchenBoard(r.Context(), restaurantID, requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}
	h.writeJSON(w, http.StatusOK, board, requestID)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request, requestID string) {
	healthy := h.service.HealthCheck(r.Context())

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "realtime-gateway",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, status, response, requestID)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, requestID string) {
	if errors.Is(err, models.ErrNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, "Order not found", requestID)
		return
	}
	h.logger.Error("db_query_failed", "Tracking query failed", requestID, err, nil)
	h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}, requestID)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, requestID string)

// withLogging adds request logging middleware
func (h *Handler) withLogging(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r, requestID)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
