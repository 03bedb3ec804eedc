// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/i18n"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeData(c *gin.Context, status int, data, meta interface{}) {
	c.JSON(status, APIResponse{Success: true, Data: data, Meta: meta})
}

func SuccessResponse(c *gin.Context, data interface{}) {
	writeData(c, http.StatusOK, data, nil)
}

func CreatedResponse(c *gin.Context, data interface{}) {
	writeData(c, http.StatusCreated, data, nil)
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

// localizedError falls back to the translated key when message is empty.
func localizedError(c *gin.Context, status int, code, message, key string, details interface{}, args ...interface{}) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), key, args...)
	}
	ErrorResponse(c, status, code, message, details)
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	localizedError(c, http.StatusBadRequest, "BAD_REQUEST", message, i18n.KeyValidationInvalid, details, "request")
}

func UnauthorizedResponse(c *gin.Context, message string) {
	localizedError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, i18n.KeyAuthRequired, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	localizedError(c, http.StatusForbidden, "FORBIDDEN", message, i18n.KeyAuthForbidden, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	writeData(c, http.StatusOK, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, exists := c.Get("lang"); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return "en"
}

var errorMessageKeys = map[string]string{
	"NOT_FOUND":        i18n.KeyContractNotFound,
	"TOKEN_EXPIRED":    i18n.KeySigningLinkExpired,
	"INVALID_STATE":    i18n.KeyContractInvalidState,
	"CONFLICT":         i18n.KeyContractConflict,
	"VALIDATION_ERROR": i18n.KeyValidationInvalid,
	"FORBIDDEN":        i18n.KeyAuthForbidden,
	"UPSTREAM_FAILURE": i18n.KeyUpstreamFailure,
}

// ErrorFromService writes the envelope for an error returned by a service.
// Domain errors keep their message; anything else is logged and hidden.
func ErrorFromService(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.Code(err)
	lang := GetLangFromContext(c)

	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
		}).Error("Unhandled service error")
		InternalErrorResponse(c, i18n.T(lang, i18n.KeyError))
		return
	}

	message := err.Error()
	if key, ok := errorMessageKeys[code]; ok && lang != "en" {
		message = i18n.T(lang, key)
	}

	var details interface{}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details = GetValidationErrors(fieldErrs)
	}
	ErrorResponse(c, status, code, message, details)
}
