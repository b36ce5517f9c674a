package utils

import (
	"errors"
	"net/http"

	"wayfinder/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Logger := GetLogger()
				Logger.Error("Unhandled panic", zap.Any("error", err), zap.String("path", c.FullPath()))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	Logger := GetLogger()
	Logger.Warn(message, zap.String("details", details), zap.Int("status", status))
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// RespondError maps a core error onto its HTTP status.
func RespondError(c *gin.Context, message string, err error) {
	switch {
	case models.IsValidationError(err):
		JSONError(c, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, models.ErrNotFound):
		JSONError(c, http.StatusNotFound, message, "not found")
	case errors.Is(err, models.ErrProviderUnavailable):
		JSONError(c, http.StatusServiceUnavailable, message, err.Error())
	default:
		JSONError(c, http.StatusInternalServerError, message, err.Error())
	}
}
