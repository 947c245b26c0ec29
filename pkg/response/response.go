// Package response provides the standardized JSON envelope for the REST
// auxiliaries in internal/httpapi.
package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the standard API response envelope. Code carries the session
// code a response concerns, when there is one, so a client watching several
// sessions can route a response without re-parsing the URL it came from.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewResponse creates a new API response.
func NewResponse(success bool, message string, data interface{}) Response {
	return Response{
		Success:   success,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorResponse creates a new error response.
func NewErrorResponse(message string, err string) Response {
	return Response{
		Success:   false,
		Message:   message,
		Error:     err,
		Timestamp: time.Now(),
	}
}

// WithSuccess sends a success response with the given data.
func WithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, NewResponse(true, message, data))
}

// WithSessionSuccess is WithSuccess with the session code stamped onto the
// envelope, used by every REST handler that answers on behalf of one
// session rather than a bare resource.
func WithSessionSuccess(c *gin.Context, statusCode int, message, code string, data interface{}) {
	resp := NewResponse(true, message, data)
	resp.Code = code
	c.JSON(statusCode, resp)
}

// WithError sends an error response.
func WithError(c *gin.Context, statusCode int, message string, err string) {
	c.JSON(statusCode, NewErrorResponse(message, err))
}
