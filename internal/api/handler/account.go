package handler

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// AccountHandler serves the register, OTP, login and profile routes of
// one role. The router mounts one instance per role.
type AccountHandler struct {
	accounts  *service.AccountService
	maxUpload int64
	log       *zap.Logger
}

func NewAccountHandler(accounts *service.AccountService, maxUpload int64, log *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, maxUpload: maxUpload, log: log}
}

// authResponse is {token, expiresAt, <role>: account}
func (h *AccountHandler) authResponse(res *service.AuthResult, message string) map[string]any {
	body := map[string]any{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt.Format(time.RFC3339),
	}
	body[string(h.accounts.Role())] = res.Account
	if message != "" {
		body["message"] = message
	}
	return body
}

// Register accepts a multipart form with an optional image, or plain JSON
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	var image io.ReadCloser

	if api.IsMultipart(r) {
		form, err := api.ParseForm(w, r, h.maxUpload)
		if err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		req = models.RegisterRequest{
			Name:         form.String("name"),
			Email:        form.String("email"),
			Password:     form.String("password"),
			Phone:        form.String("phone"),
			OpeningHours: form.String("openingHours"),
			Cuisine:      form.String("cuisine"),
			Address:      form.String("address"),
			Location:     form.String("location"),
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

	res, err := h.accounts.Register(r.Context(), req, reader(image))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, h.authResponse(res, "verification code sent to "+res.Account.Email))
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, h.authResponse(res, ""))
}

func (h *AccountHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyOTPRequest
	if !decodeValid(w, r, &req) {
		return
	}

	res, err := h.accounts.VerifyOTP(r.Context(), req.Email, req.OTP.String())
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, h.authResponse(res, "account verified"))
}

// ResendOTP mails a fresh code. The code itself is never part of the response.
func (h *AccountHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.ResendOTPRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.accounts.ResendOTP(r.Context(), req.Email); err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, map[string]string{"message": "a new verification code has been sent"})
}

func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(w, r)
	if !ok {
		return
	}

	acct, err := h.accounts.Profile(r.Context(), id)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, map[string]any{string(h.accounts.Role()): acct})
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectID(w, r)
	if !ok {
		return
	}

	var req models.ProfileUpdateRequest
	var image io.ReadCloser

	if api.IsMultipart(r) {
		form, err := api.ParseForm(w, r, h.maxUpload)
		if err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		req = models.ProfileUpdateRequest{
			Name:         form.Optional("name"),
			Phone:        form.Optional("phone"),
			OpeningHours: form.Optional("openingHours"),
			Cuisine:      form.Optional("cuisine"),
			Address:      form.Optional("address"),
			Location:     form.Optional("location"),
			Status:       form.Optional("status"),
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

	acct, err := h.accounts.UpdateProfile(r.Context(), id, req, reader(image))
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	respondJSON(w, map[string]any{string(h.accounts.Role()): acct})
}
