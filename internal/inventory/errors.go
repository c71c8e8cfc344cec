package inventory

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// httpError maps service errors onto responses. Unknown errors pass
// through to the app ErrorHandler, which reports a generic 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Inventory item not found")
	case errors.Is(err, ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Product not found")
	case errors.Is(err, ErrDuplicateInventory):
		return fiber.NewError(fiber.StatusConflict, "Inventory item for this product already exists")
	case errors.Is(err, ErrDuplicateRequest):
		return fiber.NewError(fiber.StatusConflict, "Duplicate request")
	case errors.Is(err, ErrConcurrentUpdate):
		return fiber.NewError(fiber.StatusConflict, "Inventory item was modified by another request, try again")
	case errors.Is(err, ErrInvalidKind):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid transaction type")
	case errors.Is(err, ErrInvalidQuantity):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid quantity")
	case errors.Is(err, ErrInsufficientStock):
		return fiber.NewError(fiber.StatusBadRequest, "Not enough stock available")
	}
	return err
}
