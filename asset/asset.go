// Package asset defines the external balance-ledger collaborators the
// engine moves value through.
//
// Caravan does not reimplement fungible assets. It calls into three
// ledgers it is constructed with: an inventory token ledger and a receipt
// token ledger (both multi-asset, keyed by product id) and a payment
// ledger (single fungible balance per account). Implementations must keep
// every balance non-negative and must make each call atomic: a failed
// call leaves the ledger untouched.
//
// Transfers pulled by a third party (the engine settling a claim, a
// storefront charging a buyer) are capability-gated: token ledgers use
// operator approval records, the payment ledger uses spender allowances.
package asset

import (
	"context"
	"errors"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

// Sentinel errors returned by ledger implementations.
var (
	ErrInvalidAmount         = errors.New("asset: amount must be positive")
	ErrInsufficientBalance   = errors.New("asset: insufficient balance")
	ErrInsufficientAllowance = errors.New("asset: insufficient allowance")
	ErrNotApproved           = errors.New("asset: operator not approved")
)

// TokenLedger is a multi-asset balance ledger keyed by (owner, product).
// The inventory and receipt ledgers both satisfy it.
type TokenLedger interface {
	// Mint creates amount new units of the product under to.
	Mint(ctx context.Context, to id.Address, product catalog.ProductID, amount int64) error

	// BalanceOf returns the units of the product held by owner.
	BalanceOf(ctx context.Context, owner id.Address, product catalog.ProductID) (int64, error)

	// Transfer moves amount units from from to to. The caller asserts
	// from's authority; in-process collaborators are trusted to pass the
	// acting account.
	Transfer(ctx context.Context, from, to id.Address, product catalog.ProductID, amount int64) error

	// BurnFrom destroys amount units held by owner. The operator must
	// equal owner or hold owner's approval.
	BurnFrom(ctx context.Context, operator, owner id.Address, product catalog.ProductID, amount int64) error

	// SetApprovalForAll grants or revokes operator's right to move and
	// burn any of owner's tokens.
	SetApprovalForAll(ctx context.Context, owner, operator id.Address, approved bool) error

	// IsApprovedForAll reports whether operator holds owner's approval.
	IsApprovedForAll(ctx context.Context, owner, operator id.Address) (bool, error)
}

// PaymentLedger is a single-asset fungible balance ledger with
// approve-and-pull semantics.
type PaymentLedger interface {
	// Mint credits to with new units. Used for bootstrap and tests;
	// production ledgers may reject it.
	Mint(ctx context.Context, to id.Address, amount types.Money) error

	// BalanceOf returns owner's balance.
	BalanceOf(ctx context.Context, owner id.Address) (types.Money, error)

	// Transfer moves amount from from to to.
	Transfer(ctx context.Context, from, to id.Address, amount types.Money) error

	// Approve sets spender's allowance over owner's balance.
	Approve(ctx context.Context, owner, spender id.Address, amount types.Money) error

	// Allowance returns spender's remaining allowance over owner's balance.
	Allowance(ctx context.Context, owner, spender id.Address) (types.Money, error)

	// TransferFrom moves amount from from to to, drawing down spender's
	// allowance. spender == from bypasses the allowance check.
	TransferFrom(ctx context.Context, spender, from, to id.Address, amount types.Money) error
}
