package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// MenuHandler handles menu-related requests
type MenuHandler struct {
	menuService *service.MenuService
	maxUpload   int64
	log         *zap.Logger
}

// NewMenuHandler creates a new menu handler
func NewMenuHandler(menuService *service.MenuService, maxUpload int64, log *zap.Logger) *MenuHandler {
	return &MenuHandler{menuService: menuService, maxUpload: maxUpload, log: log}
}

// menuForm reads a create request from a multipart form
func menuForm(form *api.Form) (models.MenuItemRequest, error) {
	price, err := form.Int64("price")
	if err != nil {
		return models.MenuItemRequest{}, err
	}
	available, err := form.Bool("available")
	if err != nil {
		return models.MenuItemRequest{}, err
	}
	return models.MenuItemRequest{
		Name:        form.String("foodname"),
		Description: form.String("description"),
		Category:    form.String("category"),
		Price:       price,
		Ingredients: form.List("ingredients"),
		VendorID:    form.String("vendor"),
		Available:   available,
	}, nil
}

// menuUpdateForm reads the fields present in a multipart form
func menuUpdateForm(form *api.Form) (models.MenuItemUpdateRequest, error) {
	req := models.MenuItemUpdateRequest{
		Name:        form.Optional("foodname"),
		Description: form.Optional("description"),
		Category:    form.Optional("category"),
	}
	if form.Has("price") {
		price, err := form.Int64("price")
		if err != nil {
			return req, err
		}
		req.Price = &price
	}
	if form.Has("ingredients") {
		list := form.List("ingredients")
		req.Ingredients = &list
	}
	available, err := form.Bool("available")
	if err != nil {
		return req, err
	}
	req.Available = available
	return req, nil
}

// Create adds an item to the caller's menu
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := subjectID(w, r)
	if !ok {
		return
	}

	var req models.MenuItemRequest
	var image io.ReadCloser

	if api.IsMultipart(r) {
		form, err := api.ParseForm(w, r, h.maxUpload)
		if err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		if req, err = menuForm(form); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		if image, err = form.File("image"); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		defer closeFile(image)
	} else if err := api.DecodeJSON(r, &req); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	if err := api.Validate(req); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	item, err := h.menuService.Create(r.Context(), vendorID, req, reader(image))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	api.JSON(w, http.StatusCreated, item)
}

// Update changes an item owned by the caller
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := subjectID(w, r)
	if !ok {
		return
	}

	var req models.MenuItemUpdateRequest
	var image io.ReadCloser

	if api.IsMultipart(r) {
		form, err := api.ParseForm(w, r, h.maxUpload)
		if err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		if req, err = menuUpdateForm(form); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		if image, err = form.File("image"); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		defer closeFile(image)
	} else if err := api.DecodeJSON(r, &req); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	if err := api.Validate(req); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	item, err := h.menuService.Update(r.Context(), vendorID, r.PathValue("id"), req, reader(image))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, item)
}

func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := subjectID(w, r)
	if !ok {
		return
	}

	item, err := h.menuService.Delete(r.Context(), vendorID, r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, map[string]string{"deletedMenuId": item.ID})
}

// VendorMenu lists the caller's whole menu
func (h *MenuHandler) VendorMenu(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := subjectID(w, r)
	if !ok {
		return
	}

	items, err := h.menuService.VendorMenu(r.Context(), vendorID)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, items)
}

func (h *MenuHandler) Vendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.menuService.Vendors(r.Context())
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, vendors)
}

func (h *MenuHandler) PublicMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.menuService.PublicMenu(r.Context(), r.PathValue("id"))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	respondJSON(w, items)
}
