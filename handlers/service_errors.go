package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/admin-portal/services"
	"github.com/upb/admin-portal/utils"
)

// HandleServiceError maps service errors to HTTP responses. Nothing is retried;
// each failure is reported to the action that caused it.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var (
		authErr  *services.AuthError
		httpErr  *services.HTTPError
		writeErr error
	)
	details := services.GetErrorDetails(err)

	switch {
	case utils.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), fieldDetails(err))

	case errors.As(err, &authErr):
		reason := map[string]interface{}{"reason": string(authErr.Reason)}
		if authErr.Reason == services.AuthInvalidCredentials {
			writeErr = utils.WriteError(w, http.StatusUnauthorized, authErr.Message, reason)
		} else {
			logger.Warn("API rejected authentication",
				zap.Int("status", authErr.Status),
				zap.String("message", authErr.Message))
			writeErr = utils.WriteError(w, http.StatusBadGateway, authErr.Message, reason)
		}

	case services.IsNetworkError(err):
		logger.Warn("API unreachable", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, "Network error: the API could not be reached")

	case errors.As(err, &httpErr):
		status := httpErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeErr = utils.WriteError(w, status, httpErr.Message(), map[string]interface{}{
			"upstream_status": httpErr.Status,
		})

	case services.IsStaleSessionError(err):
		writeErr = utils.WriteConflict(w, "A newer sign-in or sign-out replaced this request", nil)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, err.Error())

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, err.Error())

	case services.GetErrorType(err) == services.ErrorTypeValidation:
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.GetErrorType(err) == services.ErrorTypeExternal:
		writeErr = utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse{
			Error:   "bad_gateway",
			Message: err.Error(),
			Details: details,
		})

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleDecodeError answers a request body that could not be read
func HandleDecodeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	logger.Debug("failed to parse request body", zap.Error(err))
	if err := utils.WriteBadRequest(w, "Invalid request body", nil); err != nil {
		logger.Error("failed to write bad request response", zap.Error(err))
	}
}

func fieldDetails(err error) map[string]interface{} {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return details
}
