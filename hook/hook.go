// Package hook provides an extensible hook system for Caravan.
// Hooks can observe marketplace lifecycle events to extend functionality.
package hook

import (
	"context"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Event payloads
// ──────────────────────────────────────────────────

// Sale describes a completed purchase and its fee split.
type Sale struct {
	Buyer       id.Address
	Recipient   id.Address // token recipient, differs from Buyer on proxied sales
	Warehouse   id.Address
	ProductID   catalog.ProductID
	Quantity    int64
	Total       types.Money
	ProtocolFee types.Money
	StorageFee  types.Money
}

// Settlement describes a manufacturer profit claim.
type Settlement struct {
	Manufacturer id.Address
	ProductID    catalog.ProductID
	Quantity     int64
	Gross        types.Money
	Fees         types.Money
	Payout       types.Money
}

// Redemption describes inventory tokens exchanged for physical goods.
type Redemption struct {
	Holder    id.Address
	Warehouse id.Address
	ProductID catalog.ProductID
	Quantity  int64
}

// ReceiptClaim describes a manufacturer claiming receipt tokens for a
// confirmed shipment.
type ReceiptClaim struct {
	Manufacturer id.Address
	ShipmentID   shipment.ID
	ProductID    catalog.ProductID
	Quantity     int64
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Hook
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Hook
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnPartyRegistered is called when a party joins the marketplace.
type OnPartyRegistered interface {
	Hook
	OnPartyRegistered(ctx context.Context, kind string, addr id.Address) error
}

// OnProductCataloged is called when a manufacturer lists a new product.
type OnProductCataloged interface {
	Hook
	OnProductCataloged(ctx context.Context, p *catalog.Product) error
}

// ──────────────────────────────────────────────────
// Shipment hooks
// ──────────────────────────────────────────────────

// OnShipmentCreated is called when inventory is minted into a pending
// shipment.
type OnShipmentCreated interface {
	Hook
	OnShipmentCreated(ctx context.Context, sh *shipment.Shipment) error
}

// OnShipmentConfirmed is called when a warehouse acknowledges receipt.
type OnShipmentConfirmed interface {
	Hook
	OnShipmentConfirmed(ctx context.Context, sh *shipment.Shipment) error
}

// OnReceiptClaimed is called when a manufacturer claims receipt tokens.
type OnReceiptClaimed interface {
	Hook
	OnReceiptClaimed(ctx context.Context, claim ReceiptClaim) error
}

// ──────────────────────────────────────────────────
// Marketplace hooks
// ──────────────────────────────────────────────────

// OnSale is called when a purchase settles.
type OnSale interface {
	Hook
	OnSale(ctx context.Context, sale Sale) error
}

// OnProfitsClaimed is called when a manufacturer withdraws sale proceeds.
type OnProfitsClaimed interface {
	Hook
	OnProfitsClaimed(ctx context.Context, settlement Settlement) error
}

// OnTokensRedeemed is called when inventory tokens are burned for goods.
type OnTokensRedeemed interface {
	Hook
	OnTokensRedeemed(ctx context.Context, redemption Redemption) error
}

// OnStorageFeeClaimed is called when a warehouse withdraws accrued fees.
type OnStorageFeeClaimed interface {
	Hook
	OnStorageFeeClaimed(ctx context.Context, warehouse id.Address, fees types.Money) error
}
