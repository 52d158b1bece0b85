package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

type ctxKey struct{}

// Pinger reports database health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the order service
type Handler struct {
	service        *Service
	db             Pinger
	metrics        *metrics.Metrics
	logger         *logger.Logger
	requestTimeout time.Duration
}

// NewHandler creates a new order handler
func NewHandler(service *Service, db Pinger, m *metrics.Metrics, log *logger.Logger, requestTimeout time.Duration) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Handler{
		service:        service,
		db:             db,
		metrics:        m,
		logger:         log,
		requestTimeout: requestTimeout,
	}
}

// Routes builds the order API router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.withLogging)

	r.Get("/health", h.HealthCheck)
	r.Route("/api/restaurants/{restaurantId}", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Use(h.orderTenant)
			r.Get("/", h.GetOrder)
			r.Get("/history", h.GetOrderHistory)
			r.Put("/status", h.UpdateOrderStatus)
			r.Post("/cancel", h.CancelOrder)
			r.Delete("/", h.DeleteOrder)
		})
		r.With(h.itemTenant).Put("/order-items/{itemId}/status", h.UpdateOrderItemStatus)
	})
	return r
}

// CreateOrder handles POST /api/restaurants/{restaurantId}/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	restaurantID, ok := h.pathUUID(w, r, "restaurantId", requestID)
	if !ok {
		return
	}

	var req models.CreateOrderRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	view, err := h.service.CreateOrder(ctx, restaurantID, &req, requestID)
	if err != nil {
		h.writeServiceError(w, err, "order_creation_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusCreated, "Order created successfully", view, requestID)
}

// ListOrders handles GET /api/restaurants/{restaurantId}/orders?status=
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	restaurantID, ok := h.pathUUID(w, r, "restaurantId", requestID)
	if !ok {
		return
	}

	views, err := h.service.ListOrders(r.Context(), restaurantID, r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, err, "order_list_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Orders retrieved successfully", views, requestID)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID, ok := h.pathUUID(w, r, "orderId", requestID)
	if !ok {
		return
	}

	view, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err, "order_get_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order retrieved successfully", view, requestID)
}

func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID, ok := h.pathUUID(w, r, "orderId", requestID)
	if !ok {
		return
	}

	history, err := h.service.GetOrderHistory(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err, "order_history_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order history retrieved successfully", history, requestID)
}

// UpdateOrderStatus handles PUT .../orders/{orderId}/status with {"status": "..."}
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID, ok := h.pathUUID(w, r, "orderId", requestID)
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}
	if req.Status == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "status: status is required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	view, err := h.service.UpdateOrderStatus(ctx, orderID, req.Status, requestID)
	if err != nil {
		h.writeServiceError(w, err, "order_status_update_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order status updated successfully", view, requestID)
}

// CancelOrder handles POST .../orders/{orderId}/cancel with an optional {"reason": "..."}
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID, ok := h.pathUUID(w, r, "orderId", requestID)
	if !ok {
		return
	}

	var req models.CancelOrderRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	view, err := h.service.CancelOrder(ctx, orderID, req.Reason, requestID)
	if err != nil {
		h.writeServiceError(w, err, "order_cancel_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order cancelled successfully", view, requestID)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID, ok := h.pathUUID(w, r, "orderId", requestID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := h.service.DeleteOrder(ctx, orderID, requestID); err != nil {
		h.writeServiceError(w, err, "order_delete_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order deleted successfully", nil, requestID)
}

// UpdateOrderItemStatus handles PUT .../order-items/{itemId}/status
func (h *Handler) UpdateOrderItemStatus(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	itemID, ok := h.pathUUID(w, r, "itemId", requestID)
	if !ok {
		return
	}

	var req models.UpdateItemStatusRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}
	if req.Status == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "status: status is required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	view, err := h.service.UpdateOrderItemStatus(ctx, itemID, req.Status, requestID)
	if err != nil {
		h.writeServiceError(w, err, "order_item_status_update_failed", requestID)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Order item status updated successfully", view, requestID)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.db.Ping(ctx) == nil

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, status, response, requestIDFrom(r))
}

// orderTenant rejects order routes whose order belongs to another restaurant
func (h *Handler) orderTenant(next http.Handler) http.Handler {
	return h.tenantCheck("orderId", h.service.OrderRestaurant, next)
}

func (h *Handler) itemTenant(next http.Handler) http.Handler {
	return h.tenantCheck("itemId", h.service.ItemRestaurant, next)
}

func (h *Handler) tenantCheck(param string, owner func(context.Context, uuid.UUID) (uuid.UUID, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		restaurantID, ok := h.pathUUID(w, r, "restaurantId", requestID)
		if !ok {
			return
		}
		id, ok := h.pathUUID(w, r, param, requestID)
		if !ok {
			return
		}

		got, err := owner(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err, "tenant_check_failed", requestID)
			return
		}
		if got != restaurantID {
			h.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", param, id), requestID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid "+name, requestID)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

// statusFor maps domain error classes to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrIllegalTransition), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action, requestID string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(action, "Request failed", requestID, err, nil)
		message = "Internal server error"
	} else {
		h.logger.Warn(action, err.Error(), requestID, map[string]interface{}{"status_code": status})
	}

	body := map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	h.writeJSON(w, status, body, requestID)
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}, requestID)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	}, requestID)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// withLogging assigns a request id, logs the request and records metrics under the route pattern
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, requestID))

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.Requests.WithLabelValues(route, strconv.Itoa(rw.statusCode)).Inc()
		h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(duration.Milliseconds()))

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"route":       route,
				"status_code": rw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
	})
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

// Flush lets the realtime stream mounted on the same router push events
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
