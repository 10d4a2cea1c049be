package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
)

const keepAliveInterval = 15 * time.Second

// MenuURLFunc derives the public menu link for a restaurant.
type MenuURLFunc func(restaurantID string) string

// Handler serves the owner dashboard API.
type Handler struct {
	manager     *Manager
	menuURL     MenuURLFunc
	openTimeout time.Duration
	keepAlive   time.Duration
	logger      *logger.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(manager *Manager, menuURL MenuURLFunc, log *logger.Logger) *Handler {
	return &Handler{
		manager:     manager,
		menuURL:     menuURL,
		openTimeout: 10 * time.Second,
		keepAlive:   keepAliveInterval,
		logger:      log,
	}
}

// Routes mounts under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/restaurants/{restaurantId}", func(r chi.Router) {
		r.Post("/dashboard", h.OpenDashboard)
		r.Get("/menu-url", h.MenuURL)
	})
	r.Route("/dashboard/{sessionId}", func(r chi.Router) {
		r.Delete("/", h.CloseDashboard)
		r.Get("/orders", h.ListOrders)
		r.Get("/stats", h.GetStats)
		r.Patch("/orders/{orderId}", h.UpdateStatus)
		r.Delete("/orders/{orderId}", h.DeleteOrder)
		r.Get("/events", h.Events)
	})
	return r
}

type openResponse struct {
	SessionID    string                 `json:"session_id"`
	RestaurantID string                 `json:"restaurant_id"`
	Policy       board.TransitionPolicy `json:"status_policy"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// OpenDashboard handles POST /api/restaurants/{restaurantId}/dashboard
func (h *Handler) OpenDashboard(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	restaurantID := chi.URLParam(r, "restaurantId")

	ctx, cancel := context.WithTimeout(r.Context(), h.openTimeout)
	defer cancel()

	id, v, err := h.manager.Open(ctx, restaurantID, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, openResponse{
		SessionID:    id,
		RestaurantID: restaurantID,
		Policy:       v.Board.Policy(),
	}, requestID)
}

// CloseDashboard handles DELETE /api/dashboard/{sessionId}
func (h *Handler) CloseDashboard(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, err, logger.RequestID(r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrders handles GET /api/dashboard/{sessionId}/orders?view=list|kanban
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	switch mode := r.URL.Query().Get("view"); mode {
	case "", "list":
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"view":   "list",
			"orders": v.Board.FlatList(),
		}, requestID)
	case "kanban":
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"view":    "kanban",
			"columns": v.Board.Kanban(),
		}, requestID)
	default:
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("unknown view %q", mode), requestID)
	}
}

// GetStats handles GET /api/dashboard/{sessionId}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, v.Stats(), logger.RequestID(r))
}

// UpdateStatus handles PATCH /api/dashboard/{sessionId}/orders/{orderId}
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)

	var req updateStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	entry, err := h.manager.SetStatus(ctx, chi.URLParam(r, "sessionId"), chi.URLParam(r, "orderId"), status, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}
	h.writeJSON(w, http.StatusOK, entry, requestID)
}

// DeleteOrder handles DELETE /api/dashboard/{sessionId}/orders/{orderId}?confirm=true
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := v.Board.Delete(ctx, chi.URLParam(r, "orderId"), confirmed, requestID); err != nil {
		h.writeError(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /api/dashboard/{sessionId}/events as a server-sent
// event stream. The stream ends when the client goes away or the session
// is closed.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, http.StatusInternalServerError, "streaming unsupported", requestID)
		return
	}

	events, unsubscribe := v.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := Event{Name: EventOrdersChanged, Data: ordersChangedPayload{Reason: board.ReasonSeeded, Stats: v.Stats()}}
	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()

	sessionID := chi.URLParam(r, "sessionId")
	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event_write_failed", "Dashboard event stream write failed", requestID, map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			// An open stream keeps its session from going idle.
			if _, err := h.manager.Get(sessionID); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// MenuURL handles GET /api/restaurants/{restaurantId}/menu-url
func (h *Handler) MenuURL(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantId")
	h.writeJSON(w, http.StatusOK, map[string]string{
		"restaurant_id": restaurantID,
		"url":           h.menuURL(restaurantID),
	}, logger.RequestID(r))
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*View, bool) {
	v, err := h.manager.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, err, logger.RequestID(r))
		return nil, false
	}
	return v, true
}

// writeError maps board and session errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, board.ErrClosed):
		writeErrorResponse(w, http.StatusNotFound, ErrSessionNotFound.Error(), requestID)
	case errors.Is(err, board.ErrOrderNotFound):
		writeErrorResponse(w, http.StatusNotFound, board.ErrOrderNotFound.Error(), requestID)
	case errors.Is(err, board.ErrInvalidTransition), errors.Is(err, board.ErrUpdatePending):
		writeErrorResponse(w, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, board.ErrConfirmationRequired):
		writeErrorResponse(w, http.StatusPreconditionRequired, err.Error(), requestID)
	case errors.Is(err, database.ErrUnavailable):
		writeErrorResponse(w, http.StatusServiceUnavailable, "order store unavailable, please try again", requestID)
	default:
		h.logger.Error("request_failed", "Unhandled dashboard error", requestID, err, nil)
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

// writeErrorResponse writes an error response in JSON format
func writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}
