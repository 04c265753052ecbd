package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"printbroker/internal/domain"
)

// httpError maps domain errors onto fiber errors. Anything unrecognised is
// returned as is and rendered as a generic 500 by the server.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTokenStoreNotReady):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return err
}
