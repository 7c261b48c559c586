package response

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeNotReady        = "NOT_READY"
	CodeArtifactMissing = "ARTIFACT_MISSING"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUpgradeRequired = "UPGRADE_REQUIRED"
	CodeJobFailed       = "JOB_FAILED"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

// NotReady reports a job whose video cannot be downloaded yet.
func NotReady(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, CodeNotReady, message, nil)
}

// ArtifactMissing reports a completed job whose stored video is gone.
func ArtifactMissing(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeArtifactMissing, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

// codeForStatus maps an HTTP status to the envelope code used for it.
func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity, fiber.StatusRequestEntityTooLarge:
		return CodeValidationError
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return CodeNotFound
	case fiber.StatusUpgradeRequired:
		return CodeUpgradeRequired
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeServiceError
	}
}

// ErrorHandler renders errors that escape handlers, including fiber's own
// routing and middleware errors, in the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		status = e.Code
		message = e.Message
	}

	return Error(c, status, codeForStatus(status), message, nil)
}
