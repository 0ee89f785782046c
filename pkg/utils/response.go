package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope shared by every API route. The shape matches
// what the embedded admin frontend already parses.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse writes 200 with data
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// MessageResponse writes 200 with a message and optional data
func MessageResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse writes a failure envelope with the given status
func ErrorResponse(c *gin.Context, httpCode int, message string, err error) {
	resp := Response{
		Success: false,
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(httpCode, resp)
}

// AbortWithError writes the failure envelope for err and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	appErr := AsAppError(err)
	ErrorResponse(c, appErr.HTTPStatus(), appErr.Message, appErr.Err)
	c.Abort()
}
