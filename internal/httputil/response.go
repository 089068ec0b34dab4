package httputil

import (
	"errors"

	"github.com/gofiber/fiber/v3"
)

// ErrorResponse is the error body every endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error sends a JSON error response with the given status and message.
func Error(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message})
}

// ErrorHandler renders errors that escape the handlers. Fiber's own errors
// (route 404, method 405) keep their status and message; everything else
// becomes an opaque 500. errors.AsType is a generic helper added in Go 1.26.
func ErrorHandler(c fiber.Ctx, err error) error {
	if e, ok := errors.AsType[*fiber.Error](err); ok {
		return Error(c, e.Code, e.Message)
	}
	return Error(c, fiber.StatusInternalServerError, "An internal error occurred")
}
