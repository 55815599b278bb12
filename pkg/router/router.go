// Package router carries the shared HTTP response shapes and middleware for
// the admin API.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type resSuccess struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type resError struct {
	Status  bool   `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RequestID tags every request with an X-Request-ID header so admin actions
// can be correlated in the logs.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)
		c.Locals("request_id", id)
		return c.Next()
	}
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(resSuccess{
		Status:  true,
		Code:    fiber.StatusOK,
		Message: message,
	})
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(resSuccess{
		Status:  true,
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
	})
}

func ResponseCreated(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusCreated).JSON(resSuccess{
		Status:  true,
		Code:    fiber.StatusCreated,
		Message: message,
	})
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(resError{
		Status:  false,
		Code:    fiber.StatusBadRequest,
		Message: message,
	})
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(resError{
		Status:  false,
		Code:    fiber.StatusUnauthorized,
		Message: message,
	})
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(resError{
		Status:  false,
		Code:    fiber.StatusNotFound,
		Message: message,
	})
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(resError{
		Status:  false,
		Code:    fiber.StatusInternalServerError,
		Message: message,
	})
}
