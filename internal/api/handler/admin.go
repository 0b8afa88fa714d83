package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// AdminHandler serves the admin-only listing, removal and stats routes
type AdminHandler struct {
	admin *service.AdminService
	log   *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

// ListAccounts returns every account of the role
func (h *AdminHandler) ListAccounts(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := subjectID(w, r)
		if !ok {
			return
		}
		accounts, err := h.admin.Accounts(r.Context(), adminID, role)
		if err != nil {
			api.Error(w, r, h.log, err)
			return
		}
		respondJSON(w, accounts)
	}
}

// RemoveAccount deletes the account named by the {id} path value and
// returns it. Records referring to it are left alone.
func (h *AdminHandler) RemoveAccount(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := subjectID(w, r)
		if !ok {
			return
		}
		acct, err := h.admin.DeleteAccount(r.Context(), adminID, role, r.PathValue("id"))
		if err != nil {
			api.Error(w, r, h.log, err)
			return
		}
		respondJSON(w, acct)
	}
}

func (h *AdminHandler) ListMenus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(w, r)
	if !ok {
		return
	}
	items, err := h.admin.Menus(r.Context(), adminID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, items)
}

func (h *AdminHandler) RemoveMenu(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(w, r)
	if !ok {
		return
	}
	item, err := h.admin.DeleteMenu(r.Context(), adminID, r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, item)
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(w, r)
	if !ok {
		return
	}
	orders, err := h.admin.Orders(r.Context(), adminID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, orders)
}

func (h *AdminHandler) RemoveOrder(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(w, r)
	if !ok {
		return
	}
	order, err := h.admin.DeleteOrder(r.Context(), adminID, r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, order)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	adminID, ok := subjectID(w, r)
	if !ok {
		return
	}
	stats, err := h.admin.Stats(r.Context(), adminID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, stats)
}
