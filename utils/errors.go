package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// CodedError carries the protocol's numeric error code alongside the
// HTTP status the gateway should relay. Codes are grouped by module:
// 1xxx property registry, 2xxx investment manager, 3xxx rental
// distributor, 5xxx governance authority.
type CodedError struct {
	Code    int    `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

func Unauthorized(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusForbidden, Message: msg}
}

func NotFound(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusNotFound, Message: msg}
}

func Invalid(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusBadRequest, Message: msg}
}

// Conflict marks a lifecycle-state violation (already claimed, timelock
// unexpired, wrong status). Clients should wait or give up, not fix input.
func Conflict(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusConflict, Message: msg}
}

// Policy marks a business-policy limit (caps, cooldowns, tolerance
// bands, whitelists) as opposed to malformed input.
func Policy(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusUnprocessableEntity, Message: msg}
}

func Unavailable(code int, msg string) *CodedError {
	return &CodedError{Code: code, Status: fiber.StatusServiceUnavailable, Message: msg}
}

// RenderError writes a CodedError as {"error": ..., "code": ...} with its
// mapped status; anything else becomes a plain 500.
func RenderError(c *fiber.Ctx, err error) error {
	var coded *CodedError
	if errors.As(err, &coded) {
		return c.Status(coded.Status).JSON(fiber.Map{
			"error": coded.Message,
			"code":  coded.Code,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
