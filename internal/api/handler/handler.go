// Package handler holds the HTTP handlers. Handlers decode and validate the
// request, call one service method and write the result; status codes for
// failures come from api.Error.
package handler

import (
	"io"
	"net/http"

	"github.com/bellyrush/marketplace/internal/api"
	"github.com/bellyrush/marketplace/internal/middleware"
)

// respondJSON writes v as a 200 response
func respondJSON(w http.ResponseWriter, v any) {
	api.JSON(w, http.StatusOK, v)
}

// subjectID returns the authenticated caller or writes a 401
func subjectID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetSubjectID(r.Context())
	if !ok {
		api.Unauthorized(w, "unauthorized")
		return "", false
	}
	return id, true
}

// decodeValid decodes a JSON body into dst and checks its validate tags
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := api.DecodeJSON(r, dst); err != nil {
		api.BadRequest(w, err.Error())
		return false
	}
	if err := api.Validate(dst); err != nil {
		api.BadRequest(w, err.Error())
		return false
	}
	return true
}

// reader turns an optional upload into the io.Reader the services take,
// keeping a nil interface when no file was sent.
func reader(f io.ReadCloser) io.Reader {
	if f == nil {
		return nil
	}
	return f
}

func closeFile(f io.ReadCloser) {
	if f != nil {
		f.Close()
	}
}
