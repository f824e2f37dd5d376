// Package httpkit provides shared HTTP response helpers.
package httpkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"offerboard_backend/platform/apperr"
)

// ErrorResponse is the envelope for error payloads.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// OK writes a 200 response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Accepted writes a 202 response with the given payload.
func Accepted(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusAccepted, payload)
}

// Error writes an error response, mapping apperr kinds to HTTP statuses.
func Error(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message, Details: appErr.Details})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// BadRequest writes a 400 response with the given message.
func BadRequest(c *gin.Context, message string, details interface{}) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Details: details})
}
