package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/cart"
	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/order/internal/validation"
	"restaurant-orders/internal/session"
)

// GuestCart is a cart session bound to one restaurant's menu.
type GuestCart struct {
	RestaurantID string
	Cart         *cart.Cart
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the public ordering surface: cart sessions and submission.
type Handler struct {
	service *Service
	carts   *session.Registry[*GuestCart]
	health  Pinger
	logger  *logger.Logger
}

// NewHandler creates a new guest ordering handler. health may be nil.
func NewHandler(service *Service, carts *session.Registry[*GuestCart], health Pinger, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		carts:   carts,
		health:  health,
		logger:  log,
	}
}

// Routes mounts under /menu/{restaurantId}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/cart", h.CreateCart)
	r.Route("/cart/{cartId}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{menuItemId}", h.UpdateItem)
		r.Delete("/items/{menuItemId}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
	})
	r.Post("/orders", h.SubmitOrder)
	return r
}

type cartEntryResponse struct {
	cart.Entry
	Subtotal decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	CartID       string              `json:"cart_id"`
	RestaurantID string              `json:"restaurant_id"`
	Entries      []cartEntryResponse `json:"entries"`
	Count        int                 `json:"count"`
	Total        decimal.Decimal     `json:"total"`
}

type addItemRequest struct {
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Image      string          `json:"image"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type submitOrderRequest struct {
	Details
	Items []struct {
		MenuItemID string          `json:"menuItemId"`
		Name       string          `json:"name"`
		Price      decimal.Decimal `json:"price"`
		Quantity   int             `json:"quantity"`
	} `json:"items"`
}

type orderResponse struct {
	Order models.Order    `json:"order"`
	Total decimal.Decimal `json:"total"`
}

// CreateCart handles POST /menu/{restaurantId}/cart
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantId")
	gc := &GuestCart{RestaurantID: restaurantID, Cart: cart.New()}
	id := h.carts.Create(gc)

	h.writeJSON(w, http.StatusCreated, h.cartView(id, gc), logger.RequestID(r))
}

// GetCart handles GET /menu/{restaurantId}/cart/{cartId}
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(id, gc), logger.RequestID(r))
}

// ClearCart handles DELETE /menu/{restaurantId}/cart/{cartId}
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}
	gc.Cart.Clear()
	h.writeJSON(w, http.StatusOK, h.cartView(id, gc), logger.RequestID(r))
}

// AddItem handles POST /menu/{restaurantId}/cart/{cartId}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}
	if err := validation.ValidateMenuItem(req.MenuItemID, req.Name, req.Price); err != nil {
		h.writeError(w, err, requestID)
		return
	}

	gc.Cart.Add(cart.MenuItem{MenuItemID: req.MenuItemID, Name: req.Name, Price: req.Price, Image: req.Image})
	h.writeJSON(w, http.StatusOK, h.cartView(id, gc), requestID)
}

// UpdateItem handles PUT /menu/{restaurantId}/cart/{cartId}/items/{menuItemId}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}

	if err := validation.ValidateQuantity("quantity", max(1, req.Quantity), h.service.opts.MaxItemQuantity); err != nil {
		h.writeError(w, err, requestID)
		return
	}

	gc.Cart.UpdateQuantity(chi.URLParam(r, "menuItemId"), req.Quantity)
	h.writeJSON(w, http.StatusOK, h.cartView(id, gc), requestID)
}

// RemoveItem handles DELETE /menu/{restaurantId}/cart/{cartId}/items/{menuItemId}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}
	gc.Cart.Remove(chi.URLParam(r, "menuItemId"))
	h.writeJSON(w, http.StatusOK, h.cartView(id, gc), logger.RequestID(r))
}

// Checkout handles POST /menu/{restaurantId}/cart/{cartId}/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	id, gc, ok := h.lookupCart(w, r)
	if !ok {
		return
	}

	var details Details
	if !h.decodeOptional(w, r, &details, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	order, err := h.service.Submit(ctx, gc.RestaurantID, gc.Cart, details, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.carts.Delete(id)
	h.writeJSON(w, http.StatusCreated, orderResponse{Order: order, Total: order.Total()}, requestID)
}

// SubmitOrder handles POST /menu/{restaurantId}/orders for carts kept by the
// browser. The posted entries go through the same submission path.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r)
	restaurantID := chi.URLParam(r, "restaurantId")

	var req submitOrderRequest
	if !h.decode(w, r, &req, requestID) {
		return
	}

	c, err := h.browserCart(req)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	order, err := h.service.Submit(ctx, restaurantID, c, req.Details, requestID)
	if err != nil {
		h.writeError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, orderResponse{Order: order, Total: order.Total()}, requestID)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.health == nil || h.health.Ping(ctx) == nil
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "restaurant-orders",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, status, response, logger.RequestID(r))
}

// browserCart rebuilds a posted cart. Lines repeating a menu item are merged
// and must agree on name and price; every quantity, single or merged, stays
// within the configured limit.
func (h *Handler) browserCart(req submitOrderRequest) (*cart.Cart, error) {
	maxQty := h.service.opts.MaxItemQuantity
	c := cart.New()
	seen := make(map[string]cart.MenuItem)
	quantities := make(map[string]int)

	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if err := validation.ValidateQuantity(field+".quantity", item.Quantity, maxQty); err != nil {
			return nil, err
		}
		if err := validation.ValidateMenuItem(item.MenuItemID, item.Name, item.Price); err != nil {
			return nil, err
		}

		mi := cart.MenuItem{MenuItemID: item.MenuItemID, Name: item.Name, Price: item.Price}
		if prev, ok := seen[item.MenuItemID]; ok {
			if prev.Name != mi.Name || !prev.Price.Equal(mi.Price) {
				return nil, validation.ValidationError{
					Field:   field,
					Message: fmt.Sprintf("menu item %s is listed with a different name or price", item.MenuItemID),
				}
			}
		} else {
			seen[item.MenuItemID] = mi
			c.Add(mi)
		}

		quantities[item.MenuItemID] += item.Quantity
		if err := validation.ValidateQuantity(field+".quantity", quantities[item.MenuItemID], maxQty); err != nil {
			return nil, err
		}
	}

	for menuItemID, qty := range quantities {
		c.UpdateQuantity(menuItemID, qty)
	}
	return c, nil
}

func (h *Handler) lookupCart(w http.ResponseWriter, r *http.Request) (string, *GuestCart, bool) {
	id := chi.URLParam(r, "cartId")
	gc, ok := h.carts.Get(id)
	if !ok || gc.RestaurantID != chi.URLParam(r, "restaurantId") {
		writeErrorResponse(w, http.StatusNotFound, "cart not found", logger.RequestID(r))
		return "", nil, false
	}
	return id, gc, true
}

func (h *Handler) cartView(id string, gc *GuestCart) cartResponse {
	entries := gc.Cart.Entries()
	resp := cartResponse{
		CartID:       id,
		RestaurantID: gc.RestaurantID,
		Entries:      make([]cartEntryResponse, 0, len(entries)),
		Total:        decimal.Zero,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, cartEntryResponse{Entry: e, Subtotal: e.Subtotal()})
		resp.Count += e.Quantity
		resp.Total = resp.Total.Add(e.Subtotal())
	}
	return resp
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	return h.decodeBody(w, r, v, requestID, false)
}

// decodeOptional accepts an empty body and leaves v untouched.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}, requestID string) bool {
	return h.decodeBody(w, r, v, requestID, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, requestID string, allowEmpty bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		h.logger.Debug("validation_failed", "Failed to parse request body", requestID, map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return false
	}
	return true
}

// writeError maps submission errors onto HTTP statuses. Store failures all
// surface as the same generic message.
func (h *Handler) writeError(w http.ResponseWriter, err error, requestID string) {
	var vErr validation.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeValidationError(w, vErr, requestID)
	case errors.Is(err, ErrEmptyCart):
		writeErrorResponse(w, http.StatusUnprocessableEntity, ErrEmptyCart.Error(), requestID)
	case errors.Is(err, cart.ErrCheckoutInProgress):
		writeErrorResponse(w, http.StatusConflict, cart.ErrCheckoutInProgress.Error(), requestID)
	case errors.Is(err, database.ErrUnavailable):
		writeErrorResponse(w, http.StatusServiceUnavailable, ErrSubmissionFailed.Error(), requestID)
	default:
		h.logger.Error("request_failed", "Unhandled submission error", requestID, err, nil)
		writeErrorResponse(w, http.StatusInternalServerError, ErrSubmissionFailed.Error(), requestID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", requestID, err, nil)
	}
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

func writeValidationError(w http.ResponseWriter, vErr validation.ValidationError, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      vErr.Message,
		"field":      vErr.Field,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}
