package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/middleware"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// OrderHandler handles order-related requests
type OrderHandler struct {
	orderService *service.OrderService
	log          *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *service.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

// Create places an order for the calling buyer
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := subjectID(w, r)
	if !ok {
		return
	}

	var req models.OrderRequest
	if !decodeValid(w, r, &req) {
		return
	}

	order, err := h.orderService.Place(r.Context(), buyerID, req)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	api.JSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) BuyerOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := subjectID(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.BuyerOrders(r.Context(), buyerID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, orders)
}

func (h *OrderHandler) VendorOrders(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := subjectID(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.VendorOrders(r.Context(), vendorID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, orders)
}

// Available lists the orders waiting for a rider
func (h *OrderHandler) Available(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.Available(r.Context())
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, orders)
}

func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	riderID, ok := subjectID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.Accept(r.Context(), riderID, r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, order)
}

func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	riderID, ok := subjectID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.Deliver(r.Context(), riderID, r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, order)
}

// UpdateStatus sets a free-form status label on an order
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "unauthorized")
		return
	}

	var req models.OrderStatusRequest
	if !decodeValid(w, r, &req) {
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), actor, req)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, struct {
		Message string        `json:"message"`
		Order   *models.Order `json:"order"`
	}{
		Message: "order status updated",
		Order:   order,
	})
}
