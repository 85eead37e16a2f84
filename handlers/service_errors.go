package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/textbook-rag/services"
	"github.com/upb/textbook-rag/utils"
	"go.uber.org/zap"
)

// RateLimitMessage is returned when the model provider reports exhausted quota.
const RateLimitMessage = "Rate limit exceeded"

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsValidationError(err):
		message := err.Error()
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			message = domainErr.Message
		}
		if err := utils.WriteBadRequest(w, message, details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsRateLimitError(err):
		logger.Warn("model provider rate limited", zap.Error(err))
		if err := utils.WriteTooManyRequests(w, RateLimitMessage, details); err != nil {
			logger.Error("failed to write rate limit response", zap.Error(err))
		}

	case services.IsExternalError(err), services.IsInternalError(err), services.IsConfigurationError(err):
		logger.Error("chat request failed",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		if err := utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
			Details: details,
		}); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type", zap.Error(err))
		if err := utils.WriteInternalServerError(w, err.Error()); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}
