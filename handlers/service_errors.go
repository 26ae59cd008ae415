package handlers

import (
	"net/http"

	"github.com/upb/securestarter/services"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Only the
// client-safe message of a DomainError reaches the body; causes are logged.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, r, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, r, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, r, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, r, message)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, r, message, details)

	case services.IsExternalError(err):
		logger.Warn("external provider error", zap.Error(err))
		writeErr = utils.WriteError(w, r, http.StatusBadGateway, message, nil)

	case services.IsInternalError(err):
		logger.Error("internal server error",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, r, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, r, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles errors from decoding or validating a request body
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var writeErr error
	if utils.IsValidationError(err) {
		writeErr = utils.WriteBadRequest(w, r, "Validation failed", utils.FieldDetails(err))
	} else {
		writeErr = utils.WriteBadRequest(w, r, "Invalid request body", nil)
	}
	if writeErr != nil {
		logger.Error("failed to write validation error response", zap.Error(writeErr))
	}
}

// decodeRequest decodes and validates the JSON body into dst. On failure it
// writes the 400 response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		logger.Debug("failed to decode request body",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		HandleValidationError(w, r, err, logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, r, err, logger)
		return false
	}
	return true
}

// requireQuery returns the named query parameter, writing a 400 when it is blank
func requireQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (string, bool) {
	value := r.URL.Query().Get(name)
	if err := utils.ValidateRequired(value, name); err != nil {
		if writeErr := utils.WriteBadRequest(w, r, err.Error(), nil); writeErr != nil {
			logger.Error("failed to write bad request response", zap.Error(writeErr))
		}
		return "", false
	}
	return value, true
}
