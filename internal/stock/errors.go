package stock

import "errors"

var (
	ErrVariantNotFound  = errors.New("variant not found")
	ErrMissingVariantID = errors.New("variant id is required")
	ErrInvalidQuantity  = errors.New("quantity must not be negative")
	ErrEmptyBatch       = errors.New("bulk update requires at least one item")
	ErrLockNotAcquired  = errors.New("stock is locked by another operation, try again later")
)
