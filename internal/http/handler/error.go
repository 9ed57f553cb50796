package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"offerapi/internal/apperr"
	"offerapi/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// ResolutionOptions lists the caller's ways out of a concurrency
	// conflict. Only set for 409 responses.
	ResolutionOptions []string `json:"resolution_options,omitempty"`
}

// conflictResolutions are the documented recovery paths after a stale-write
// rejection: re-fetch and overwrite, fork a new version, or inspect history.
var conflictResolutions = []string{"overwrite", "create_version", "view_changes"}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "NOT_FOUND", "CONFLICT")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	if status == fiber.StatusConflict {
		res.Error.ResolutionOptions = conflictResolutions
	}
	return c.Status(status).JSON(res)
}

// writeAppError maps a service-layer error onto the HTTP taxonomy. Untagged
// errors collapse to 500 with a generic body.
func writeAppError(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	message := "internal server error"
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		message = ae.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", message)
	case apperr.KindUnauthorized:
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message)
	case apperr.KindNotFound:
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", message)
	case apperr.KindPreconditionRequired:
		return writeError(c, fiber.StatusPreconditionFailed, "PRECONDITION_REQUIRED", message)
	case apperr.KindConflict:
		return writeError(c, fiber.StatusConflict, "CONFLICT", message)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", message)
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return writeAppError(c, ae)
		}

		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
