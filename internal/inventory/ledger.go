package inventory

import (
	"errors"

	"wholesale-backend/internal/models"
)

var (
	ErrNotFound           = errors.New("inventory item not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrDuplicateInventory = errors.New("inventory item for this product already exists")
	ErrInvalidKind        = errors.New("invalid transaction type")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInsufficientStock  = errors.New("not enough stock available")
	ErrConcurrentUpdate   = errors.New("inventory item was modified concurrently")
	ErrDuplicateRequest   = errors.New("duplicate request")
)

// isDomainError reports whether err is one of the expected rejections
// above rather than a storage failure.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrProductNotFound, ErrDuplicateInventory, ErrInvalidKind,
		ErrInvalidQuantity, ErrInsufficientStock, ErrConcurrentUpdate, ErrDuplicateRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Apply validates a transaction against the current on-hand quantity and
// returns the quantity after it. in and out take a positive delta,
// adjustment takes the new absolute quantity.
func Apply(current int, kind models.TransactionKind, quantity int) (int, error) {
	switch kind {
	case models.TransactionIn:
		if quantity <= 0 {
			return current, ErrInvalidQuantity
		}
	case models.TransactionOut:
		if quantity <= 0 {
			return current, ErrInvalidQuantity
		}
		if quantity > current {
			return current, ErrInsufficientStock
		}
	case models.TransactionAdjustment:
		if quantity < 0 {
			return current, ErrInvalidQuantity
		}
	default:
		return current, ErrInvalidKind
	}
	return step(current, kind, quantity), nil
}

func step(current int, kind models.TransactionKind, quantity int) int {
	switch kind {
	case models.TransactionIn:
		return current + quantity
	case models.TransactionOut:
		return current - quantity
	case models.TransactionAdjustment:
		return quantity
	}
	return current
}

// Replay folds a transaction log from zero. For a consistent record the
// result equals Inventory.Quantity.
func Replay(txs []models.InventoryTransaction) int {
	q := 0
	for _, t := range txs {
		q = step(q, t.Kind, t.Quantity)
	}
	return q
}
