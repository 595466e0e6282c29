// Package memory provides in-process reference implementations of the
// asset ledgers. They back the test suite and embedded deployments where
// the token and payment assets live in the same process as the engine.
package memory

import (
	"context"
	"sync"

	"github.com/caravanhq/caravan/asset"
	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

// compile-time interface checks
var (
	_ asset.TokenLedger   = (*TokenLedger)(nil)
	_ asset.PaymentLedger = (*PaymentLedger)(nil)
)

type balanceKey struct {
	owner   id.Address
	product catalog.ProductID
}

type pairKey struct {
	owner id.Address
	other id.Address
}

// TokenLedger is an in-memory multi-asset balance ledger.
type TokenLedger struct {
	mu        sync.RWMutex
	balances  map[balanceKey]int64
	approvals map[pairKey]bool

	minted map[catalog.ProductID]int64
	burned map[catalog.ProductID]int64
}

// NewTokenLedger creates an empty token ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		balances:  make(map[balanceKey]int64),
		approvals: make(map[pairKey]bool),
		minted:    make(map[catalog.ProductID]int64),
		burned:    make(map[catalog.ProductID]int64),
	}
}

// Mint creates amount new units of the product under to.
func (l *TokenLedger) Mint(_ context.Context, to id.Address, product catalog.ProductID, amount int64) error {
	if amount <= 0 {
		return asset.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[balanceKey{owner: to, product: product}] += amount
	l.minted[product] += amount
	return nil
}

// BalanceOf returns the units of the product held by owner.
func (l *TokenLedger) BalanceOf(_ context.Context, owner id.Address, product catalog.ProductID) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[balanceKey{owner: owner, product: product}], nil
}

// Transfer moves amount units from from to to.
func (l *TokenLedger) Transfer(_ context.Context, from, to id.Address, product catalog.ProductID, amount int64) error {
	if amount <= 0 {
		return asset.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey := balanceKey{owner: from, product: product}
	if l.balances[fromKey] < amount {
		return asset.ErrInsufficientBalance
	}

	l.balances[fromKey] -= amount
	l.balances[balanceKey{owner: to, product: product}] += amount
	return nil
}

// BurnFrom destroys amount units held by owner. The operator must equal
// owner or hold owner's approval.
func (l *TokenLedger) BurnFrom(_ context.Context, operator, owner id.Address, product catalog.ProductID, amount int64) error {
	if amount <= 0 {
		return asset.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !operator.Equal(owner) && !l.approvals[pairKey{owner: owner, other: operator}] {
		return asset.ErrNotApproved
	}

	key := balanceKey{owner: owner, product: product}
	if l.balances[key] < amount {
		return asset.ErrInsufficientBalance
	}

	l.balances[key] -= amount
	l.burned[product] += amount
	return nil
}

// SetApprovalForAll grants or revokes operator's right over owner's tokens.
func (l *TokenLedger) SetApprovalForAll(_ context.Context, owner, operator id.Address, approved bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey{owner: owner, other: operator}
	if approved {
		l.approvals[key] = true
	} else {
		delete(l.approvals, key)
	}
	return nil
}

// IsApprovedForAll reports whether operator holds owner's approval.
func (l *TokenLedger) IsApprovedForAll(_ context.Context, owner, operator id.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.approvals[pairKey{owner: owner, other: operator}], nil
}

// Outstanding returns total minted minus total burned units for the
// product. Every unit not burned is held by exactly one owner, so this
// equals the sum of all balances — the conservation check the tests use.
func (l *TokenLedger) Outstanding(product catalog.ProductID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.minted[product] - l.burned[product]
}

// TotalHeld sums the product's balance across all holders.
func (l *TokenLedger) TotalHeld(product catalog.ProductID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for key, bal := range l.balances {
		if key.product == product {
			total += bal
		}
	}
	return total
}

// PaymentLedger is an in-memory fungible balance ledger with
// approve-and-pull semantics. All amounts share one currency, fixed at
// construction.
type PaymentLedger struct {
	mu         sync.RWMutex
	currency   string
	balances   map[id.Address]int64
	allowances map[pairKey]int64
}

// NewPaymentLedger creates an empty payment ledger denominated in currency.
func NewPaymentLedger(currency string) *PaymentLedger {
	return &PaymentLedger{
		currency:   currency,
		balances:   make(map[id.Address]int64),
		allowances: make(map[pairKey]int64),
	}
}

// Mint credits to with new units.
func (l *PaymentLedger) Mint(_ context.Context, to id.Address, amount types.Money) error {
	if err := l.check(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[to] += amount.Amount
	return nil
}

// BalanceOf returns owner's balance.
func (l *PaymentLedger) BalanceOf(_ context.Context, owner id.Address) (types.Money, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return types.New(l.balances[owner], l.currency), nil
}

// Transfer moves amount from from to to.
func (l *PaymentLedger) Transfer(_ context.Context, from, to id.Address, amount types.Money) error {
	if err := l.check(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.move(from, to, amount.Amount)
}

// Approve sets spender's allowance over owner's balance.
func (l *PaymentLedger) Approve(_ context.Context, owner, spender id.Address, amount types.Money) error {
	if amount.Currency != l.currency || amount.IsNegative() {
		return asset.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.allowances[pairKey{owner: owner, other: spender}] = amount.Amount
	return nil
}

// Allowance returns spender's remaining allowance over owner's balance.
func (l *PaymentLedger) Allowance(_ context.Context, owner, spender id.Address) (types.Money, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return types.New(l.allowances[pairKey{owner: owner, other: spender}], l.currency), nil
}

// TransferFrom moves amount from from to to, drawing down spender's
// allowance. spender == from bypasses the allowance check.
func (l *PaymentLedger) TransferFrom(_ context.Context, spender, from, to id.Address, amount types.Money) error {
	if err := l.check(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !spender.Equal(from) {
		key := pairKey{owner: from, other: spender}
		if l.allowances[key] < amount.Amount {
			return asset.ErrInsufficientAllowance
		}
		l.allowances[key] -= amount.Amount
	}

	return l.move(from, to, amount.Amount)
}

func (l *PaymentLedger) check(amount types.Money) error {
	if amount.Currency != l.currency || !amount.IsPositive() {
		return asset.ErrInvalidAmount
	}
	return nil
}

// move requires l.mu held for writing.
func (l *PaymentLedger) move(from, to id.Address, amount int64) error {
	if l.balances[from] < amount {
		return asset.ErrInsufficientBalance
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
