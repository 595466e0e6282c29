// Package storefront implements the reselling proxy in front of the
// engine. A storefront charges its customer the listed price plus its
// registered markup, buys from the engine at the listed price on its own
// account, and forwards the inventory tokens to the customer. It keeps
// the markup and ends every sale holding zero inventory.
package storefront

import (
	"context"
	"log/slog"

	"github.com/caravanhq/caravan"
	"github.com/caravanhq/caravan/asset"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/types"
)

// Storefront drives proxied sales on behalf of one registered reseller
// address. The customer must have approved the storefront's address on
// the payment ledger for the marked-up total.
type Storefront struct {
	engine    *caravan.Engine
	inventory asset.TokenLedger
	payments  asset.PaymentLedger
	addr      id.Address
	logger    *slog.Logger
}

// New creates a storefront front end for the given reseller address. The
// address must be registered with the engine via RegisterStorefront
// before it can sell.
func New(engine *caravan.Engine, inventory asset.TokenLedger, payments asset.PaymentLedger, addr id.Address, opts ...Option) *Storefront {
	s := &Storefront{
		engine:    engine,
		inventory: inventory,
		payments:  payments,
		addr:      addr,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option configures a Storefront instance.
type Option func(*Storefront)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storefront) {
		s.logger = logger
	}
}

// Address returns the reseller's account address.
func (s *Storefront) Address() id.Address { return s.addr }

// Quote returns the marked-up unit price the storefront charges for the
// product.
func (s *Storefront) Quote(ctx context.Context, sku string) (types.Money, error) {
	record, err := s.engine.GetStorefront(ctx, s.addr)
	if err != nil {
		return types.Money{}, err
	}
	p, err := s.engine.GetProductBySKU(ctx, sku)
	if err != nil {
		return types.Money{}, err
	}
	return p.UnitPrice.Add(record.Markup), nil
}

// Sell charges the customer the marked-up total, purchases the units
// from the engine at the listed price on the storefront's own account,
// and forwards the inventory tokens to the customer. Returns the total
// the customer paid.
//
// If the engine purchase fails after the customer was charged, the
// charge is refunded before the error is returned.
func (s *Storefront) Sell(ctx context.Context, customer id.Address, sku string, quantity int64) (types.Money, error) {
	if quantity <= 0 {
		return types.Money{}, caravan.ErrInvalidQuantity
	}

	record, err := s.engine.GetStorefront(ctx, s.addr)
	if err != nil {
		if caravan.IsNotFound(err) {
			return types.Money{}, caravan.ErrUnauthorized
		}
		return types.Money{}, err
	}
	p, err := s.engine.GetProductBySKU(ctx, sku)
	if err != nil {
		return types.Money{}, err
	}

	resale := p.UnitPrice.Add(record.Markup)
	total := resale.Multiply(quantity)
	base := p.UnitPrice.Multiply(quantity)

	// Charge the customer up front; the whole marked-up amount lands on
	// the storefront's balance.
	if err := s.payments.TransferFrom(ctx, s.addr, customer, s.addr, total); err != nil {
		return types.Money{}, err
	}

	if err := s.payments.Approve(ctx, s.addr, s.engine.Address(), base); err != nil {
		s.refund(ctx, customer, total)
		return types.Money{}, err
	}
	if err := s.engine.PurchaseProduct(ctx, s.addr, sku, p.UnitPrice, quantity); err != nil {
		s.refund(ctx, customer, total)
		return types.Money{}, err
	}
	if err := s.inventory.Transfer(ctx, s.addr, customer, p.ID, quantity); err != nil {
		return types.Money{}, err
	}

	s.logger.Info("storefront sale",
		"storefront", s.addr,
		"customer", customer,
		"product_id", p.ID,
		"quantity", quantity,
		"total", total,
		"markup", record.Markup,
	)
	return total, nil
}

func (s *Storefront) refund(ctx context.Context, customer id.Address, total types.Money) {
	if err := s.payments.Transfer(ctx, s.addr, customer, total); err != nil {
		s.logger.Error("failed to refund customer after aborted sale",
			"storefront", s.addr,
			"customer", customer,
			"total", total,
			"error", err,
		)
	}
}
