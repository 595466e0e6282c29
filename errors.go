package caravan

import (
	"errors"

	"github.com/caravanhq/caravan/asset"
)

// Sentinel errors for every failure a public operation can return.
// Operations abort with zero state mutation when they fail; retries are
// the caller's responsibility.
var (
	// Authorization errors
	ErrUnauthorized = errors.New("caravan: unauthorized")

	// Registration errors
	ErrAlreadyRegistered = errors.New("caravan: address already registered")

	// Catalog errors
	ErrDuplicateSKU     = errors.New("caravan: sku already in catalog")
	ErrInvalidSKU       = errors.New("caravan: invalid sku")
	ErrInvalidPrice     = errors.New("caravan: price must not be negative")
	ErrCurrencyMismatch = errors.New("caravan: currency does not match engine currency")

	// Lookup errors
	ErrNotFound             = errors.New("caravan: not found")
	ErrProductNotFound      = errors.New("caravan: product not found")
	ErrShipmentNotFound     = errors.New("caravan: shipment not found")
	ErrManufacturerNotFound = errors.New("caravan: manufacturer not found")
	ErrWarehouseNotFound    = errors.New("caravan: warehouse not found")
	ErrStorefrontNotFound   = errors.New("caravan: storefront not found")

	// Shipment state errors
	ErrInvalidQuantity        = errors.New("caravan: quantity must be positive")
	ErrShipmentNotPending     = errors.New("caravan: shipment is not pending")
	ErrShipmentNotConfirmed   = errors.New("caravan: shipment receipt not confirmed by warehouse")
	ErrShipmentAlreadyClaimed = errors.New("caravan: shipment receipt tokens already claimed")

	// Purchase errors
	ErrPriceMismatch         = errors.New("caravan: expected price does not match listed price")
	ErrInsufficientInventory = errors.New("caravan: not enough inventory tokens in engine custody")
	ErrInsufficientFunds     = errors.New("caravan: insufficient payment balance")
	ErrInsufficientAllowance = errors.New("caravan: insufficient payment allowance")

	// Settlement errors
	ErrInsufficientReceipts = errors.New("caravan: insufficient receipt tokens")
	ErrNotApproved          = errors.New("caravan: engine not approved to pull tokens")
	ErrNothingToClaim       = errors.New("caravan: nothing to claim")
	ErrNothingToRedeem      = errors.New("caravan: no inventory tokens to redeem")
)

// IsNotFound returns true if the error is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrShipmentNotFound) ||
		errors.Is(err, ErrManufacturerNotFound) ||
		errors.Is(err, ErrWarehouseNotFound) ||
		errors.Is(err, ErrStorefrontNotFound)
}

// IsAlreadyRegistered returns true if a registration hit an existing
// record for the same address.
func IsAlreadyRegistered(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered)
}

// IsUnauthorized returns true if the caller lacked the required role or
// ownership for the operation.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInvalidState returns true if a shipment precondition failed.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrShipmentNotPending) ||
		errors.Is(err, ErrShipmentNotConfirmed) ||
		errors.Is(err, ErrShipmentAlreadyClaimed)
}

// IsInsufficient returns true if a balance or allowance check failed,
// on either the engine's own guards or the underlying asset ledgers.
func IsInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrInsufficientReceipts) ||
		errors.Is(err, asset.ErrInsufficientBalance) ||
		errors.Is(err, asset.ErrInsufficientAllowance)
}

// IsClaimError returns true if an exactly-once claim guard rejected the
// operation.
func IsClaimError(err error) bool {
	return errors.Is(err, ErrShipmentAlreadyClaimed) ||
		errors.Is(err, ErrNothingToClaim) ||
		errors.Is(err, ErrNothingToRedeem)
}
