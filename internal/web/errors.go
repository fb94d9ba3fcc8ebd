package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail server-side and
// returned to clients as a user-friendly JSON message with a stable
// support code, mapped via pipeline.MapError.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/filevet/filevet/internal/logging"
	"github.com/filevet/filevet/internal/pipeline"
	"github.com/filevet/filevet/internal/record"
	"github.com/filevet/filevet/internal/storage"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user
// message with a status derived from the pipeline stage that failed.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := pipeline.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedSource),
		errors.Is(err, pipeline.ErrMissingPayload),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, storage.ErrPathTraversal):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrTooManyUploads):
		return http.StatusTooManyRequests
	case errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	}

	var sizeErr *pipeline.SizeError
	if errors.As(err, &sizeErr) {
		return http.StatusRequestEntityTooLarge
	}

	var spoofErr *pipeline.SpoofError
	var structErr *pipeline.StructureError
	var decodeErr *pipeline.DecodeError
	var policyErr *pipeline.PolicyError
	if errors.As(err, &spoofErr) || errors.As(err, &structErr) ||
		errors.As(err, &decodeErr) || errors.As(err, &policyErr) {
		return http.StatusUnprocessableEntity
	}

	var storageErr *pipeline.StorageError
	if errors.As(err, &storageErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}
