// Package store defines the persistence interface for the engine's own
// state: the catalog, the party registry, the shipment table and the
// settlement counters. Asset balances live in the asset ledgers, not here.
package store

import (
	"context"

	"github.com/caravanhq/caravan/catalog"
	"github.com/caravanhq/caravan/id"
	"github.com/caravanhq/caravan/party"
	"github.com/caravanhq/caravan/shipment"
	"github.com/caravanhq/caravan/types"
)

// Store is the unified storage interface for all engine state. Instead of
// embedding sub-interfaces, all methods are declared explicitly to avoid
// naming conflicts.
//
// Every method is atomic: it either fully applies or leaves the store
// untouched. Implementations return the caravan package's sentinel errors
// for domain failures (ErrDuplicateSKU, ErrAlreadyRegistered, the
// not-found and shipment-state variants) so callers can classify with
// errors.Is.
//
// Party records are stored without their derived views: the engine
// composes Products, PendingShipments and SettledShipments from the
// catalog and shipment queries when serving reads.
type Store interface {
	// Party registry methods
	CreateManufacturer(ctx context.Context, m *party.Manufacturer) error
	GetManufacturer(ctx context.Context, addr id.Address) (*party.Manufacturer, error)
	CreateWarehouse(ctx context.Context, w *party.Warehouse) error
	GetWarehouse(ctx context.Context, addr id.Address) (*party.Warehouse, error)
	CreateStorefront(ctx context.Context, sf *party.Storefront) error
	GetStorefront(ctx context.Context, addr id.Address) (*party.Storefront, error)

	// Catalog methods. CreateProduct allocates the next dense product id
	// into p.ID and fails with ErrDuplicateSKU if the sku is taken.
	CreateProduct(ctx context.Context, p *catalog.Product) error
	GetProduct(ctx context.Context, productID catalog.ProductID) (*catalog.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*catalog.Product, error)
	ListProducts(ctx context.Context) ([]*catalog.Product, error)
	ListProductIDsByManufacturer(ctx context.Context, addr id.Address) ([]catalog.ProductID, error)

	// Shipment methods. CreateShipment allocates the next dense shipment
	// id into s.ID. AdvanceShipment compare-and-swaps the status from
	// from to to, failing with the matching shipment-state sentinel when
	// the current status is not from.
	CreateShipment(ctx context.Context, s *shipment.Shipment) error
	GetShipment(ctx context.Context, shipmentID shipment.ID) (*shipment.Shipment, error)
	AdvanceShipment(ctx context.Context, shipmentID shipment.ID, from, to shipment.Status) error
	ListShipmentIDs(ctx context.Context, q shipment.Query) ([]shipment.ID, error)

	// Settlement methods. ResetClaimable returns the counter value it
	// zeroed; WithdrawStorageFees returns the accrued fees it zeroed.
	// Both are atomic so claims settle exactly once.
	AddClaimable(ctx context.Context, productID catalog.ProductID, qty int64) error
	Claimable(ctx context.Context, productID catalog.ProductID) (int64, error)
	ResetClaimable(ctx context.Context, productID catalog.ProductID) (int64, error)
	AccrueStorageFee(ctx context.Context, warehouse id.Address, fee types.Money) error
	WithdrawStorageFees(ctx context.Context, warehouse id.Address) (types.Money, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
